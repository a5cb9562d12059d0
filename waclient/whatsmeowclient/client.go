// Package whatsmeowclient adapts a whatsmeow client, backed by a per-tenant SQLite device
// store, to the waclient boundary.
package whatsmeowclient

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jrsteele09/wa-session-gateway/internal/utils"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

const (
	DefaultDBName = "device.db"
	eventBuffer   = 32
)

var (
	_ waclient.Client        = (*Client)(nil)
	_ waclient.Flusher       = (*Client)(nil)
	_ waclient.LogoutCapable = (*Client)(nil)
)

type Client struct {
	tenantID string
	db       *sql.DB
	wa       *whatsmeow.Client
	log      zerolog.Logger

	events chan waclient.Event
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	destroyed bool
	ready     bool
}

// NewFactory builds clients whose device store is the SQLite file dbName inside the
// tenant's credential dir
func NewFactory(dbName string) waclient.Factory {
	if dbName == "" {
		dbName = DefaultDBName
	}
	return func(ctx context.Context, tenantID, credentialDir string) (waclient.Client, error) {
		return New(ctx, tenantID, filepath.Join(credentialDir, dbName))
	}
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// New opens the device store at dbPath and prepares a client for it
func New(ctx context.Context, tenantID, dbPath string) (*Client, error) {
	logger := log.With().Str("tenant", tenantID).Str("component", "whatsmeow").Logger()
	waLogger := newLogger(logger)

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "[whatsmeowclient.New] open device store")
	}
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite3", waLogger.Sub("Database"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[whatsmeowclient.New] upgrade device store")
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[whatsmeowclient.New] load device")
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		tenantID: tenantID,
		db:       db,
		wa:       whatsmeow.NewClient(device, waLogger.Sub("Client")),
		log:      logger,
		events:   make(chan waclient.Event, eventBuffer),
		ctx:      cctx,
		cancel:   cancel,
	}
	c.wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// Initialize connects. An unpaired device first subscribes to pairing codes.
func (c *Client) Initialize(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrCh, err := c.wa.GetQRChannel(c.ctx)
		if err != nil {
			return errors.Wrap(err, "[Client Initialize] qr channel")
		}
		go c.pumpQR(qrCh)
	}
	if err := c.wa.Connect(); err != nil {
		return errors.Wrap(err, "[Client Initialize] connect")
	}
	return nil
}

func (c *Client) pumpQR(qrCh <-chan whatsmeow.QRChannelItem) {
	for item := range qrCh {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(waclient.Event{Kind: waclient.EventPairingCode, Payload: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.log.Info().Msg("pairing code scanned")
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(waclient.Event{Kind: waclient.EventAuthFailure, Reason: "pairing codes expired without a scan"})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			c.emit(waclient.Event{Kind: waclient.EventAuthFailure, Reason: reason})
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.mu.Lock()
		first := !c.ready
		c.ready = true
		c.mu.Unlock()
		if first {
			c.emit(waclient.Event{Kind: waclient.EventReady})
		}
	case *events.PairSuccess:
		c.log.Info().Str("jid", e.ID.String()).Msg("device paired")
	case *events.LoggedOut:
		c.emit(waclient.Event{Kind: waclient.EventDisconnected, Reason: "logged out: " + e.Reason.String()})
	case *events.StreamReplaced:
		c.emit(waclient.Event{Kind: waclient.EventDisconnected, Reason: "stream replaced by another connection"})
	case *events.TemporaryBan:
		c.emit(waclient.Event{Kind: waclient.EventDisconnected, Reason: e.String()})
	case *events.ClientOutdated:
		c.emit(waclient.Event{Kind: waclient.EventAuthFailure, Reason: "client outdated"})
	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect failure %d: %s", int(e.Reason), e.Message)
		if c.isReady() {
			c.emit(waclient.Event{Kind: waclient.EventDisconnected, Reason: reason})
		} else {
			c.emit(waclient.Event{Kind: waclient.EventAuthFailure, Reason: reason})
		}
	case *events.Disconnected:
		c.log.Debug().Msg("websocket dropped, whatsmeow will reconnect")
	}
}

func (c *Client) isReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// emit gives up once the client is destroyed so whatsmeow's handlers never block teardown
func (c *Client) emit(evt waclient.Event) {
	evt.At = time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.destroyed {
		return
	}
	select {
	case c.events <- evt:
	case <-c.ctx.Done():
	}
}

func (c *Client) Events() <-chan waclient.Event {
	return c.events
}

func (c *Client) SendMessage(ctx context.Context, destination, body string) (waclient.SendResult, error) {
	to := types.NewJID(destination, types.DefaultUserServer)
	resp, err := c.wa.SendMessage(ctx, to, &waE2E.Message{Conversation: utils.Ptr(body)})
	if err != nil {
		return waclient.SendResult{}, err
	}
	return waclient.SendResult{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

// Flush checkpoints the WAL into the main database file so the credential files are complete
func (c *Client) Flush(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.Wrap(err, "[Client Flush] wal checkpoint")
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.wa.Logout(ctx)
}

func (c *Client) Destroy() error {
	// Cancel first so a blocked emit releases its read lock
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.wa.Disconnect()
	close(c.events)
	return c.db.Close()
}
