// ABOUTME: End-to-end encryption setup for the Matrix frontend
// ABOUTME: Keeps the mautrix crypto store in SQLite and optionally verifies with a recovery key

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// Crypto owns the E2EE helper attached to a client.
type Crypto struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// EnableCrypto attaches an E2EE helper to the frontend's client. The device
// ID is looked up with whoami since the client was built from an access token.
// A device ID mismatch with the stored keys resets the crypto database.
func (f *Frontend) EnableCrypto(ctx context.Context) (*Crypto, error) {
	if f.client == nil {
		return nil, errors.New("matrix client not initialized")
	}
	if f.cfg.DataDir == "" {
		return nil, errors.New("frontends.matrix.data_dir is required for encryption")
	}
	if err := os.MkdirAll(f.cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	whoami, err := f.client.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("matrix whoami: %w", err)
	}
	f.client.DeviceID = whoami.DeviceID

	dbPath := filepath.Join(f.cfg.DataDir, fmt.Sprintf("matrix-crypto-%s.db", slugify(f.cfg.UserID)))
	f.logger.Info("setting up encryption", "db", dbPath, "device_id", whoami.DeviceID)

	if needsReset, err := checkDeviceIDMismatch(dbPath, whoami.DeviceID.String()); err != nil {
		f.logger.Debug("could not check device ID", "error", err)
	} else if needsReset {
		f.logger.Warn("device ID mismatch detected, resetting crypto database")
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing old crypto database: %w", err)
		}
		_ = os.Remove(dbPath + "-wal")
		_ = os.Remove(dbPath + "-shm")
	}

	helper, err := cryptohelper.NewCryptoHelper(f.client, deriveStoreKey(f.cfg.UserID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	f.client.Crypto = helper

	c := &Crypto{helper: helper, logger: f.logger}
	if f.cfg.RecoveryKey != "" {
		if err := c.verify(ctx, f.cfg.RecoveryKey); err != nil {
			// Encryption still works without cross-signing.
			f.logger.Warn("failed to verify with recovery key", "error", err)
		} else {
			f.logger.Info("encryption initialized with cross-signing verification")
		}
	} else {
		f.logger.Info("encryption initialized (no recovery key - cross-signing disabled)")
	}
	return c, nil
}

func (c *Crypto) verify(ctx context.Context, recoveryKey string) error {
	machine := c.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		return fmt.Errorf("recovery key verification failed: %w", err)
	}
	return nil
}

// Close cleans up crypto resources.
func (c *Crypto) Close() error {
	if c.helper != nil {
		return c.helper.Close()
	}
	return nil
}

// slugify converts a Matrix user ID to a filesystem-safe string.
// Example: @craftbot:matrix.org -> craftbot_matrix.org
func slugify(userID string) string {
	s := userID
	if len(s) > 0 && s[0] == '@' {
		s = s[1:]
	}
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '_' {
			result = append(result, c)
		} else if c == ':' {
			result = append(result, '_')
		}
	}
	return string(result)
}

// deriveStoreKey creates a deterministic store encryption key from user ID.
func deriveStoreKey(userID string) []byte {
	h := sha256.Sum256([]byte("craft-bridge-crypto:" + userID))
	return h[:]
}

// checkDeviceIDMismatch reports whether an existing crypto database belongs
// to a different device.
func checkDeviceIDMismatch(dbPath string, currentDeviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var storedDeviceID string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&storedDeviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return storedDeviceID != currentDeviceID, nil
}
