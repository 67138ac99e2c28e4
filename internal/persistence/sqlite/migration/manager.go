package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
}

// NewManager wires a scanner and executor. A nil logger discards output.
func NewManager(scanner *Scanner, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration. Applied files whose checksum changed
// abort the run with ErrChecksumMismatch.
func (m *Manager) Run(ctx context.Context) error {
	started := time.Now()
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "schema version",
		"current_version", status.CurrentVersion, "pending", len(status.Pending))

	for _, mig := range status.Pending {
		elapsed, err := m.executor.Apply(ctx, mig)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", mig.Version, "path", mig.Path, "error", err)
			return err
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", mig.Version, "description", mig.Description, "duration_ms", elapsed.Milliseconds())
	}
	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations complete",
			"applied", len(status.Pending), "duration_ms", time.Since(started).Milliseconds())
	}
	return nil
}

// Status compares the available files with the schema_migrations table.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	checksums := make(map[int]string, len(applied))
	status := Status{Applied: applied}
	for _, a := range applied {
		checksums[a.Version] = a.Checksum
		status.CurrentVersion = max(status.CurrentVersion, a.Version)
	}
	for _, mig := range available {
		sum, ok := checksums[mig.Version]
		if !ok {
			status.Pending = append(status.Pending, mig)
			continue
		}
		if sum != mig.Checksum {
			return Status{}, newError(mig, "verify checksum", fmt.Errorf("%w: recorded %s", ErrChecksumMismatch, sum))
		}
	}
	return status, nil
}
