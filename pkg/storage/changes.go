package storage

import (
	"time"

	"github.com/chris/neighborhood-packs/pkg/models"
)

// PackChange is a guarded pack status update. Backends apply it in the same
// atomic write as the transaction record that causes it, or not at all.
//
// The write requires status == From. When Version is non-zero the stored
// version must match. When From is reserved, reserved_by must equal Holder.
// On success status becomes To and version is incremented; reserved_by is set
// to Holder when To is reserved and cleared when To is available.
//
// From == To == available is a plain version bump used to serialize writers.
type PackChange struct {
	PackID  string
	From    models.PackStatus
	To      models.PackStatus
	Version int64
	Holder  string
	At      time.Time
}

// FailureErr is the error reported when this change's guard fails.
func (c PackChange) FailureErr() error {
	if c.From == models.PackReserved {
		return ErrPackMismatch
	}
	return ErrPackUnavailable
}

// Reserve moves an available pack at the given version to reserved by holder.
func Reserve(pack *models.Pack, holder string, at time.Time) PackChange {
	return PackChange{PackID: pack.ID, From: models.PackAvailable, To: models.PackReserved, Version: pack.Version, Holder: holder, At: at}
}

// Touch bumps the version of an available pack without changing its status.
func Touch(pack *models.Pack, at time.Time) PackChange {
	return PackChange{PackID: pack.ID, From: models.PackAvailable, To: models.PackAvailable, Version: pack.Version, At: at}
}

// Release returns a pack reserved by holder to available.
func Release(packID, holder string, at time.Time) PackChange {
	return PackChange{PackID: packID, From: models.PackReserved, To: models.PackAvailable, Holder: holder, At: at}
}

// Sell marks a pack reserved by holder as sold.
func Sell(packID, holder string, at time.Time) PackChange {
	return PackChange{PackID: packID, From: models.PackReserved, To: models.PackSold, Holder: holder, At: at}
}
