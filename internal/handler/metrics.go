package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики быстрых путей реестра
var (
	shortensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkregistry_shortens_total",
		Help: "Количество созданных коротких ссылок",
	})

	redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkregistry_redirects_total",
		Help: "Количество разрешений коротких кодов по исходу",
	}, []string{"outcome"})
)
