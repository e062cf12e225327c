// Package universe implements C3: the ordered, deduplicated set of tickers
// every scan and refresh operates over.
package universe

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/database"
	"github.com/sorelab/sore/internal/events"
)

// DefaultSymbols seeds a fresh universe and is restored by Reset.
var DefaultSymbols = []string{"SPY", "QQQ", "IWM", "DIA", "XSP", "RUT", "NDX"}

var symbolPattern = regexp.MustCompile(`^[A-Z^]{1,6}$`)

// Schema creates the table backing the universe store.
const Schema = `
CREATE TABLE IF NOT EXISTS universe_symbols (
	symbol     TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	added_at   TIMESTAMP NOT NULL
);
`

// ErrInvalidSymbol is returned when a caller-supplied ticker fails validation.
type ErrInvalidSymbol struct{ Symbol string }

func (e *ErrInvalidSymbol) Error() string {
	return fmt.Sprintf("invalid symbol %q: must match %s", e.Symbol, symbolPattern.String())
}

// Store is the sqlite-backed, order-preserving symbol universe.
type Store struct {
	db     *database.DB
	events *events.Manager
	log    zerolog.Logger
}

// New creates a Store and seeds it with DefaultSymbols if it's empty.
func New(ctx context.Context, db *database.DB, em *events.Manager, log zerolog.Logger) (*Store, error) {
	s := &Store{db: db, events: em, log: log.With().Str("component", "universe").Logger()}

	if err := db.Migrate(ctx, Schema); err != nil {
		return nil, fmt.Errorf("migrating universe schema: %w", err)
	}

	count, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		if err := s.seed(ctx, DefaultSymbols); err != nil {
			return nil, fmt.Errorf("seeding default universe: %w", err)
		}
	}
	return s, nil
}

func (s *Store) count(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM universe_symbols")
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting universe symbols: %w", err)
	}
	return n, nil
}

func (s *Store) seed(ctx context.Context, symbols []string) error {
	for i, sym := range symbols {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO universe_symbols (symbol, position, added_at) VALUES (?, ?, ?)",
			sym, i, time.Now(),
		); err != nil {
			return fmt.Errorf("seeding symbol %s: %w", sym, err)
		}
	}
	return nil
}

// List returns the universe in insertion order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT symbol FROM universe_symbols ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("listing universe: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning universe row: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Add inserts symbol at the end of the universe if it isn't already present.
// The symbol is upper-cased and trimmed before validation, mirroring the
// normalization every sqlite-backed lookup in this codebase applies.
func (s *Store) Add(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(symbol) {
		return &ErrInvalidSymbol{Symbol: symbol}
	}

	var nextPos int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(position), -1) + 1 FROM universe_symbols")
	if err := row.Scan(&nextPos); err != nil {
		return fmt.Errorf("computing next position: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO universe_symbols (symbol, position, added_at) VALUES (?, ?, ?)",
		symbol, nextPos, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("adding symbol %s: %w", symbol, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info().Str("symbol", symbol).Msg("symbol added to universe")
		s.events.Emit(events.SymbolAdded, "universe", map[string]interface{}{"symbol": symbol})
	}
	return nil
}

// Remove deletes symbol from the universe. Removing a symbol that isn't
// present is not an error.
func (s *Store) Remove(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	res, err := s.db.ExecContext(ctx, "DELETE FROM universe_symbols WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("removing symbol %s: %w", symbol, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info().Str("symbol", symbol).Msg("symbol removed from universe")
		s.events.Emit(events.SymbolRemoved, "universe", map[string]interface{}{"symbol": symbol})
	}
	return nil
}

// Reset clears the universe and restores DefaultSymbols.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM universe_symbols"); err != nil {
		return fmt.Errorf("clearing universe: %w", err)
	}
	if err := s.seed(ctx, DefaultSymbols); err != nil {
		return fmt.Errorf("reseeding universe: %w", err)
	}
	s.log.Info().Msg("universe reset to defaults")
	s.events.Emit(events.SymbolUniverseReset, "universe", map[string]interface{}{"symbols": DefaultSymbols})
	return nil
}

// Subscribe registers a listener for universe change events
// (SymbolAdded/SymbolRemoved/SymbolUniverseReset) and returns an unsubscribe
// function.
func (s *Store) Subscribe(listener func(events.Event)) (unsubscribe func()) {
	unsubAdd := s.subscribeAll(listener, events.SymbolAdded, events.SymbolRemoved, events.SymbolUniverseReset)
	return unsubAdd
}

func (s *Store) subscribeAll(listener func(events.Event), types ...events.Type) func() {
	var unsubs []func()
	for _, t := range types {
		unsubs = append(unsubs, s.events.Subscribe(t, listener))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
