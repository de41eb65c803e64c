package session

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/keriauth/internal/util"
	"github.com/jmcleod/keriauth/models"
)

const passcodeSaltLen = 16

// ErrEmptyPasscode is returned when provisioning an empty passcode.
var ErrEmptyPasscode = errors.New("passcode must not be empty")

// NewConfiguration returns cfg with its passcode verifier replaced by an
// argon2id hash of passcode. Connection parameters are kept.
func NewConfiguration(cfg models.Configuration, passcode string, params util.Argon2idParams) (models.Configuration, error) {
	if passcode == "" {
		return cfg, ErrEmptyPasscode
	}
	salt, err := util.RandomBytes(passcodeSaltLen)
	if err != nil {
		return cfg, fmt.Errorf("generating passcode salt: %w", err)
	}

	buf := memguard.NewBufferFromBytes([]byte(util.Normalize(passcode)))
	defer buf.Destroy()
	hash, err := util.DeriveArgon2idKey(buf.Bytes(), salt, params)
	if err != nil {
		return cfg, fmt.Errorf("hashing passcode: %w", err)
	}

	cfg.PasscodeHash = hash
	cfg.PasscodeSalt = salt
	cfg.KDFParams = params
	return cfg, nil
}

// VerifyPasscode reports whether passcode matches the verifier in cfg.
// A configuration without a verifier matches nothing.
func VerifyPasscode(cfg models.Configuration, passcode string) (bool, error) {
	if passcode == "" || !cfg.HasPasscode() {
		return false, nil
	}
	buf := memguard.NewBufferFromBytes([]byte(util.Normalize(passcode)))
	defer buf.Destroy()
	return util.CompareArgon2idKey(buf.Bytes(), cfg.PasscodeSalt, cfg.KDFParams, cfg.PasscodeHash)
}
