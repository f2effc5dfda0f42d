// Package rpcserver RPC фронтенд реестра поверх net/rpc (gob по TCP).
// Повторяет операции остальных фронтендов: личность разрешается по
// username через справочник пользователей, бизнес-правила — в фасаде.
package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"github.com/dkuznetsov/link-registry/internal/service"
	"go.uber.org/zap"
)

const resolveTimeout = 5 * time.Second

type CreateArgs struct {
	OriginalURL string
	Username    string
}

type ListArgs struct {
	Username string
}

type StatsArgs struct {
	ShortCode string
}

type LinkReply struct {
	ID          string
	ShortCode   string
	OriginalURL string
	Owner       string
	AccessCount int64
	CreatedAt   time.Time
}

type ListReply struct {
	Links []LinkReply
}

type StatsReply struct {
	AccessCount   int64
	AccessTimes   []time.Time
	BrowserStats  map[string]int
	PlatformStats map[string]int
}

// RegistryService методы, экспортируемые через net/rpc под именем "Registry".
type RegistryService struct {
	registry service.Registry
	users    repository.UserRepository
	logger   *zap.Logger
}

// Create создаёт ссылку от имени зарегистрированного пользователя.
func (s *RegistryService) Create(args CreateArgs, reply *LinkReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	caller, err := s.resolveCaller(ctx, args.Username)
	if err != nil {
		return err
	}

	link, err := s.registry.Shorten(ctx, args.OriginalURL, caller)
	if err != nil {
		return rpcError(err)
	}

	*reply = toReply(link)
	return nil
}

// List возвращает ссылки, видимые пользователю.
func (s *RegistryService) List(args ListArgs, reply *ListReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	caller, err := s.resolveCaller(ctx, args.Username)
	if err != nil {
		return err
	}

	links, err := s.registry.List(ctx, caller)
	if err != nil {
		return rpcError(err)
	}

	reply.Links = make([]LinkReply, 0, len(links))
	for _, link := range links {
		reply.Links = append(reply.Links, toReply(link))
	}
	return nil
}

// Stats возвращает сводку доступов по коду.
func (s *RegistryService) Stats(args StatsArgs, reply *StatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	stats, err := s.registry.Stats(ctx, args.ShortCode)
	if err != nil {
		return rpcError(err)
	}

	reply.AccessCount = stats.AccessCount
	reply.AccessTimes = stats.AccessTimes
	reply.BrowserStats = stats.BrowserStats
	reply.PlatformStats = stats.PlatformStats
	return nil
}

// resolveCaller превращает username в личность через справочник.
func (s *RegistryService) resolveCaller(ctx context.Context, username string) (models.Identity, error) {
	if username == "" {
		return models.Identity{}, errors.New("invalid_input: username is required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.Identity{}, fmt.Errorf("not_found: unknown user %s", username)
		}
		return models.Identity{}, err
	}

	return models.Authenticated(user.Username, user.Role), nil
}

func toReply(link *models.Link) LinkReply {
	reply := LinkReply{
		ID:          link.ID.String(),
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		AccessCount: link.AccessCount,
		CreatedAt:   link.CreatedAt,
	}
	if link.Owner != nil {
		reply.Owner = link.Owner.Username
	}
	return reply
}

// rpcError сводит таксономию ядра к стабильным префиксам: net/rpc
// передаёт ошибки строками, клиент матчит префикс.
func rpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return fmt.Errorf("invalid_input: %v", err)
	case errors.Is(err, service.ErrNotFound):
		return fmt.Errorf("not_found: %v", err)
	case errors.Is(err, service.ErrConflict):
		return fmt.Errorf("conflict: %v", err)
	case errors.Is(err, service.ErrForbidden):
		return fmt.Errorf("forbidden: %v", err)
	default:
		return fmt.Errorf("internal: %v", err)
	}
}

// Server слушает TCP и обслуживает RPC соединения.
type Server struct {
	rpcSrv   *rpc.Server
	logger   *zap.Logger
	listener net.Listener
}

func New(registry service.Registry, users repository.UserRepository, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rpcSrv := rpc.NewServer()
	svc := &RegistryService{registry: registry, users: users, logger: logger}
	if err := rpcSrv.RegisterName("Registry", svc); err != nil {
		return nil, fmt.Errorf("failed to register rpc service: %w", err)
	}

	return &Server{rpcSrv: rpcSrv, logger: logger}, nil
}

// Start начинает принимать соединения на addr (например ":9090").
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.logger.Info("RPC server listening", zap.String("addr", listener.Addr().String()))

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("Failed to accept rpc connection", zap.Error(err))
				continue
			}
			go s.rpcSrv.ServeConn(conn)
		}
	}()

	return nil
}

// Addr адрес слушателя; пуст до Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop закрывает слушатель. Уже принятые соединения дорабатывают сами.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
}
