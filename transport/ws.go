package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Config is the connection configuration for [Dial].
type Config struct {
	// URL is the websocket URL of the server's client gateway.
	URL string
	// Username and Password authenticate the bot's account.
	Username, Password string
	// Nickname is the display name to log in with.
	Nickname string
	// ClientName identifies the client software to the server.
	ClientName string
	// Timeout is the timeout between reads. The server is expected to emit
	// keepalives more often than this.
	Timeout time.Duration
}

// frame is the JSON envelope for every message in either direction.
type frame struct {
	// Type discriminates the payload.
	Type string `json:"type"`
	// Data is the payload, decoded per Type.
	Data jsontext.Value `json:"data,omitzero"`
}

// login is the payload of the first frame the client sends.
type login struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Nickname   string `json:"nickname,omitzero"`
	ClientName string `json:"client,omitzero"`
}

// serverError is the payload of an error frame.
type serverError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// joinleave is the payload of join and leave frames.
type joinleave struct {
	User    User   `json:"user"`
	Channel string `json:"channel"`
}

// Session is a websocket connection to the chat server.
type Session struct {
	conn    *websocket.Conn
	timeout time.Duration

	// wmu serializes writes. The session supervisor owns the connection, but
	// sends may also come from command handlers on worker goroutines.
	wmu sync.Mutex

	events chan Event
	// done releases recv if it is blocked on events when the consumer is
	// already gone.
	done    chan struct{}
	closing sync.Once
	err     error
}

var _ Conn = (*Session)(nil)

// Dial connects to the chat server and authenticates. If the HTTP client is
// nil, [http.DefaultClient] is used. Authentication rejections are returned
// as *[AuthError]; any other failure is a transient network error.
func Dial(ctx context.Context, client *http.Client, cfg Config) (*Session, error) {
	var opts *websocket.DialOptions
	if client != nil {
		opts = &websocket.DialOptions{HTTPClient: client}
	}
	slog.DebugContext(ctx, "dial chat server", slog.String("url", cfg.URL))
	conn, resp, err := websocket.Dial(ctx, cfg.URL, opts)
	if err != nil {
		if resp != nil {
			b := make([]byte, 1024)
			n, _ := resp.Body.Read(b)
			b = b[:n]
			return nil, fmt.Errorf("couldn't connect to chat server: %w (%s)", err, b)
		}
		return nil, fmt.Errorf("couldn't connect to chat server: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	s := &Session{
		conn:    conn,
		timeout: cfg.Timeout,
		events:  make(chan Event, 8),
		done:    make(chan struct{}),
	}
	hello := login{
		Username:   cfg.Username,
		Password:   cfg.Password,
		Nickname:   cfg.Nickname,
		ClientName: cfg.ClientName,
	}
	if err := s.write(ctx, "login", &hello); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("couldn't send login: %w", err)
	}
	// The first frame from the server is a welcome or an error.
	f, err := s.read(ctx)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("couldn't receive login response: %w", err)
	}
	switch f.Type {
	case "welcome":
		// do nothing
	case "error":
		conn.CloseNow()
		var e serverError
		if err := json.Unmarshal(f.Data, &e); err != nil {
			return nil, fmt.Errorf("login rejected with undecodable error: %w", err)
		}
		if e.Code == "auth" {
			return nil, &AuthError{Reason: e.Reason}
		}
		return nil, fmt.Errorf("login rejected: %s (%s)", e.Reason, e.Code)
	default:
		conn.CloseNow()
		return nil, fmt.Errorf("unexpected first frame %q", f.Type)
	}
	go s.recv()
	return s, nil
}

// Events returns the event channel. It is closed when the connection drops.
func (s *Session) Events() <-chan Event { return s.events }

// Err reports the error that terminated the session, if any.
func (s *Session) Err() error { return s.err }

// Close closes the connection. The events channel closes shortly after.
func (s *Session) Close() error {
	s.closing.Do(func() { close(s.done) })
	return s.conn.Close(websocket.StatusNormalClosure, "goodbye")
}

// recv reads frames and delivers events until the connection fails.
func (s *Session) recv() {
	defer close(s.events)
	for {
		f, err := s.readWait()
		if err != nil {
			s.err = err
			s.conn.CloseNow()
			return
		}
		ev, err := translate(f)
		if err != nil {
			slog.Warn("bad frame from server", slog.String("type", f.Type), slog.Any("err", err))
			continue
		}
		if ev == nil {
			continue
		}
		if !s.deliver(ev) {
			s.conn.CloseNow()
			return
		}
	}
}

// deliver hands ev to the consumer. It reports false if the session closed
// before the consumer took the event.
func (s *Session) deliver(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// readWait reads one frame, bounded by the configured read timeout.
func (s *Session) readWait() (*frame, error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.read(ctx)
}

// translate converts a frame into an event. A nil event with nil error means
// the frame carries nothing the bot cares about.
func translate(f *frame) (Event, error) {
	switch f.Type {
	case "privmsg", "chanmsg":
		var m Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, err
		}
		m.Private = f.Type == "privmsg"
		return MessageEvent{m}, nil
	case "join":
		var j joinleave
		if err := json.Unmarshal(f.Data, &j); err != nil {
			return nil, err
		}
		return JoinEvent{User: j.User, Channel: j.Channel}, nil
	case "leave":
		var j joinleave
		if err := json.Unmarshal(f.Data, &j); err != nil {
			return nil, err
		}
		return LeaveEvent{User: j.User, Channel: j.Channel}, nil
	case "ping", "ack":
		return nil, nil
	default:
		return nil, nil
	}
}

func (s *Session) read(ctx context.Context) (*frame, error) {
	_, b, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("couldn't decode frame: %w", err)
	}
	return &f, nil
}

func (s *Session) write(ctx context.Context, typ string, data any) error {
	d, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("couldn't encode %s payload: %w", typ, err)
	}
	b, err := json.Marshal(&frame{Type: typ, Data: d})
	if err != nil {
		return fmt.Errorf("couldn't encode %s frame: %w", typ, err)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, b)
}

type sendPayload struct {
	To      string `json:"to,omitzero"`
	Channel string `json:"channel,omitzero"`
	Text    string `json:"text"`
}

type userOp struct {
	User    string `json:"user,omitzero"`
	Channel string `json:"channel,omitzero"`
	Path    string `json:"path,omitzero"`
}

type selfOp struct {
	Nickname string `json:"nickname,omitzero"`
	Status   string `json:"status,omitzero"`
	Path     string `json:"path,omitzero"`
}

func (s *Session) SendPrivate(ctx context.Context, to, text string) error {
	return s.write(ctx, "privmsg", &sendPayload{To: to, Text: text})
}

func (s *Session) SendChannel(ctx context.Context, channel, text string) error {
	return s.write(ctx, "chanmsg", &sendPayload{Channel: channel, Text: text})
}

func (s *Session) Join(ctx context.Context, path string) error {
	return s.write(ctx, "join", &selfOp{Path: path})
}

func (s *Session) SetNick(ctx context.Context, nick string) error {
	return s.write(ctx, "nick", &selfOp{Nickname: nick})
}

func (s *Session) SetStatus(ctx context.Context, status string) error {
	return s.write(ctx, "status", &selfOp{Status: status})
}

func (s *Session) Kick(ctx context.Context, user, channel string) error {
	return s.write(ctx, "kick", &userOp{User: user, Channel: channel})
}

func (s *Session) Move(ctx context.Context, user, path string) error {
	return s.write(ctx, "move", &userOp{User: user, Path: path})
}

func (s *Session) Ban(ctx context.Context, username string) error {
	return s.write(ctx, "ban", &userOp{User: username})
}

func (s *Session) Unban(ctx context.Context, username string) error {
	return s.write(ctx, "unban", &userOp{User: username})
}
