package gotd

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/gotd/td/session"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
)

// Session strings use the Telethon StringSession layout: a version byte
// '1' followed by URL-safe base64 of dc id, server IP, big-endian port and
// the 256-byte auth key.
const (
	sessionVersion = '1'
	authKeySize    = 256
)

// memoryStorage is a session.Storage kept in process memory. The toolkit
// persists sessions through the credential vault, never through files.
type memoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func (m *memoryStorage) LoadSession(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memoryStorage) StoreSession(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memoryStorage) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data) == 0
}

// importSession seeds storage from a session string.
func importSession(ctx context.Context, storage session.Storage, s string) error {
	data, err := session.TelethonSession(s)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidCredential, err)
	}
	return (&session.Loader{Storage: storage}).Save(ctx, data)
}

// exportSession renders the session held by storage as a session string.
func exportSession(ctx context.Context, storage session.Storage) (string, error) {
	data, err := (&session.Loader{Storage: storage}).Load(ctx)
	if err != nil {
		return "", err
	}
	return encodeSession(data.DC, data.Addr, data.AuthKey)
}

func encodeSession(dc int, addr string, authKey []byte) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("bad dc address %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", fmt.Errorf("bad dc port %q: %w", portStr, err)
	}
	return encodeRaw(dc, host, uint16(port), authKey)
}

func encodeRaw(dc int, host string, port uint16, authKey []byte) (string, error) {
	if len(authKey) != authKeySize {
		return "", fmt.Errorf("%w: auth key must be %d bytes, got %d", common.ErrInvalidCredential, authKeySize, len(authKey))
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("%w: bad dc ip %q", common.ErrInvalidCredential, host)
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	buf := make([]byte, 0, 1+len(ip)+2+authKeySize)
	buf = append(buf, byte(dc))
	buf = append(buf, ip...)
	buf = binary.BigEndian.AppendUint16(buf, port)
	buf = append(buf, authKey...)
	return string(sessionVersion) + base64.URLEncoding.EncodeToString(buf), nil
}

// decodeSessionDB reads the first row of a Telethon sqlite session file.
func decodeSessionDB(ctx context.Context, db *sql.DB) (string, error) {
	var (
		dc   int
		host string
		port int
		key  []byte
	)
	err := db.QueryRowContext(ctx, `SELECT dc_id, server_address, port, auth_key FROM sessions LIMIT 1`).
		Scan(&dc, &host, &port, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: session file holds no session", common.ErrInvalidCredential)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidCredential, err)
	}
	return encodeRaw(dc, host, uint16(port), key)
}
