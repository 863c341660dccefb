// Package whatsapp wraps the whatsmeow client for direct WhatsApp invite delivery.
//
// The first start links a device by printing a login QR code (or numeric pairing code); the
// session is kept in the whatsmeow SQL store afterwards.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

const (
	// DefaultSQLitePath is the default path of the whatsmeow session database.
	DefaultSQLitePath = "/var/lib/looppipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID server for regular users.
	JIDSuffix = types.DefaultUserServer
)

// Sender sends a WhatsApp text to a phone number given as digits.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database
	QRPath      string // file the login QR code is written to; stdout when empty
	NumericCode bool   // print the raw pairing code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the pairing code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client wraps a connected whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

var _ Sender = (*Client)(nil)

// DBDriver returns the database/sql driver name for a whatsmeow DSN.
func DBDriver(dsn string) string {
	if store.DetectKind(dsn) == store.KindPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// NewClient connects to WhatsApp, running the device login flow when no session exists.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("whatsapp.NewClient: no DSN provided, using default SQLite path", "path", dbDSN)
	}
	driver := DBDriver(dbDSN)
	if driver == "sqlite3" && !strings.Contains(dbDSN, "foreign_keys") {
		slog.Warn("whatsapp.NewClient: SQLite DSN does not enable foreign keys, which whatsmeow requires for integrity",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	container, err := sqlstore.New(ctx, driver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}
	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID != nil {
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
		slog.Info("whatsapp.NewClient: connected")
		return &Client{waClient: waClient}, nil
	}

	slog.Info("whatsapp.NewClient: login required, starting pairing flow")
	qrChan, _ := waClient.GetQRChannel(ctx)
	if err := waClient.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			RenderLoginCode(writer, evt.Code, cfg.NumericCode)
			continue
		}
		slog.Info("whatsapp.NewClient: login event", "event", evt.Event)
	}
	slog.Info("whatsapp.NewClient: connected")
	return &Client{waClient: waClient}, nil
}

// RenderLoginCode writes a pairing code as a terminal QR code, or verbatim when numeric.
func RenderLoginCode(w io.Writer, code string, numeric bool) {
	if numeric {
		fmt.Fprintln(w, code)
		return
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// JIDFor builds the user JID for a phone number in digits.
func JIDFor(number string) (types.JID, error) {
	digits := strings.TrimPrefix(number, "+")
	if digits == "" {
		return types.JID{}, fmt.Errorf("recipient cannot be empty")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return types.JID{}, fmt.Errorf("recipient %q must contain only digits", number)
		}
	}
	return types.NewJID(digits, JIDSuffix), nil
}

// SendMessage sends a plain text message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	jid, err := JIDFor(to)
	if err != nil {
		return err
	}
	resp, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		slog.Error("Client.SendMessage: send failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Client.SendMessage: message sent", "to", to, "message_id", resp.ID)
	return nil
}

// Disconnect closes the WhatsApp connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// MockClient satisfies Sender without a WhatsApp connection.
type MockClient struct {
	Sent []string
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(_ context.Context, to string, body string) error {
	if _, err := JIDFor(to); err != nil {
		return err
	}
	m.Sent = append(m.Sent, to+": "+body)
	return nil
}
