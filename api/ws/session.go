package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	mw "github.com/kasuganosora/arenabot/middleware"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// frame is one outgoing websocket message.
type frame struct {
	kind int
	data []byte
}

// Session is one connected game host.
type Session struct {
	ID     string
	Claims *mw.HostClaims
	Conn   *websocket.Conn

	SendChan chan frame
	Done     chan struct{}
	LastSeq  uint64
	// Binary is set once the host sends msgpack frames; replies follow.
	Binary bool

	mu        sync.Mutex
	closeOnce sync.Once
	watches   map[string]func()
	logger    *zap.Logger
}

// NewSession creates a session; the write pump starts when conn is non-nil.
func NewSession(claims *mw.HostClaims, conn *websocket.Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		ID:       uuid.NewString(),
		Claims:   claims,
		Conn:     conn,
		SendChan: make(chan frame, sendChanBuf),
		Done:     make(chan struct{}),
		watches:  make(map[string]func()),
	}
	s.logger = logger.With(zap.String("session", s.ID), zap.String("host", s.Host()))
	if conn != nil {
		go s.writePump()
	}
	return s
}

// Host is the authenticated host name.
func (s *Session) Host() string {
	if s.Claims == nil {
		return ""
	}
	return s.Claims.Host
}

// AllowsLevel reports whether the host may drive level.
func (s *Session) AllowsLevel(level string) bool {
	return s.Claims != nil && s.Claims.AllowsLevel(level)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case f := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(f.kind, f.data); err != nil {
				s.logger.Warn("ws write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt in the session's wire format and queues it. Packets are
// dropped when the queue is full or the session is closed.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	s.mu.Lock()
	binary := s.Binary
	s.mu.Unlock()
	f, err := encodePacket(pkt, binary)
	if err != nil {
		s.logger.Error("packet not encoded", zap.String("type", pkt.Type), zap.Error(err))
		return
	}
	select {
	case s.SendChan <- f:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet", zap.String("type", pkt.Type))
	}
}

func (s *Session) setBinary(b bool) {
	s.mu.Lock()
	s.Binary = b
	s.mu.Unlock()
}

// Watch records a decision subscription, replacing one for the same level.
func (s *Session) Watch(level string, cancel func()) {
	s.mu.Lock()
	old := s.watches[level]
	s.watches[level] = cancel
	s.mu.Unlock()
	if old != nil {
		old()
	}
}

// Unwatch cancels the decision subscription for level.
func (s *Session) Unwatch(level string) bool {
	s.mu.Lock()
	cancel, ok := s.watches[level]
	delete(s.watches, level)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Close cancels every subscription and signals the write pump to stop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		watches := s.watches
		s.watches = make(map[string]func())
		s.mu.Unlock()
		for _, cancel := range watches {
			cancel()
		}
		close(s.Done)
	})
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline resets the websocket read deadline.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}

// SessionManager maintains the registry of connected host sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session), logger: logger}
}

// Register adds a session.
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ID] = s
	sm.logger.Info("host session registered", zap.String("session", s.ID), zap.String("host", s.Host()))
}

// Unregister removes a session.
func (sm *SessionManager) Unregister(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Count returns the number of connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CloseAll closes every connected session.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	sm.logger.Info("closing host sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}
}
