package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the durable Store on Postgres. Counter increments are single
// UPDATE statements so concurrent calls for the same client never lose an
// exchange; flow-state writes are last-writer-wins per the reconciliation
// contract.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, logger: logger}
}

const profileColumns = `id, phone, name, tier, total_exchanges, payment_link_sent_at, flow, memory, greeting_idx, last_call_at, created_at`

func (s *PGStore) Get(ctx context.Context, id string) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	return scanProfile(row)
}

func (s *PGStore) GetByPhone(ctx context.Context, phone string) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE phone = $1`, phone)
	return scanProfile(row)
}

func (s *PGStore) Create(ctx context.Context, p *Profile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	tier := p.Tier
	if tier == "" {
		tier = TierFree
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	flow, err := json.Marshal(p.Flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	memory, err := json.Marshal(p.Memory)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, phone, name, tier, total_exchanges, payment_link_sent_at, flow, memory, greeting_idx, last_call_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Phone, p.Name, string(tier), p.TotalExchanges, p.PaymentLinkSentAt, flow, memory, p.GreetingIdx, p.LastCallAt, createdAt)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, id string, patch Patch) error {
	set := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Tier != nil {
		add("tier", string(*patch.Tier))
	}
	if patch.GreetingIdx != nil {
		add("greeting_idx", *patch.GreetingIdx)
	}
	if patch.LastCallAt != nil {
		add("last_call_at", *patch.LastCallAt)
	}
	if patch.Memory != nil {
		b, err := json.Marshal(*patch.Memory)
		if err != nil {
			return fmt.Errorf("marshal memory: %w", err)
		}
		add("memory", b)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) IncrementExchanges(ctx context.Context, id string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`UPDATE profiles SET total_exchanges = total_exchanges + 1 WHERE id = $1 RETURNING total_exchanges`, id).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment exchanges: %w", err)
	}
	return n, nil
}

func (s *PGStore) SaveFlow(ctx context.Context, id string, fs FlowState) error {
	b, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE profiles SET flow = $1 WHERE id = $2`, b, id)
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkLinkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET payment_link_sent_at = $1 WHERE id = $2 AND payment_link_sent_at IS NULL`, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark link sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ClearLinkSent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET payment_link_sent_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear link sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Merge is a best-effort multi-step procedure. A failure partway is logged at
// Error level with both ids for manual reconciliation; the profiles are left
// as they are rather than half-deleted.
func (s *PGStore) Merge(ctx context.Context, dstID, srcID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("merge begin: %w", err)
	}
	defer tx.Rollback(ctx)

	dst, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, dstID))
	if err != nil {
		s.logMergeFailure(dstID, srcID, err)
		return fmt.Errorf("merge load dst: %w", err)
	}
	src, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, srcID))
	if err != nil {
		s.logMergeFailure(dstID, srcID, err)
		return fmt.Errorf("merge load src: %w", err)
	}

	out := merged(dst, src)
	flow, err := json.Marshal(out.Flow)
	if err != nil {
		return fmt.Errorf("merge marshal flow: %w", err)
	}
	memory, err := json.Marshal(out.Memory)
	if err != nil {
		return fmt.Errorf("merge marshal memory: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, srcID); err != nil {
		s.logMergeFailure(dstID, srcID, err)
		return fmt.Errorf("merge delete src: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE profiles SET phone = $1, name = $2, tier = $3, total_exchanges = $4,
			payment_link_sent_at = $5, flow = $6, memory = $7, last_call_at = $8, created_at = $9
		WHERE id = $10`,
		out.Phone, out.Name, string(out.Tier), out.TotalExchanges,
		out.PaymentLinkSentAt, flow, memory, out.LastCallAt, out.CreatedAt, dstID)
	if err != nil {
		s.logMergeFailure(dstID, srcID, err)
		return fmt.Errorf("merge write dst: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		s.logMergeFailure(dstID, srcID, err)
		return fmt.Errorf("merge commit: %w", err)
	}
	return nil
}

func (s *PGStore) logMergeFailure(dstID, srcID string, err error) {
	s.logger.Error("profile merge failed, manual reconciliation required",
		"dst_id", dstID, "src_id", srcID, "error", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		p          Profile
		tier       string
		flowRaw    []byte
		memoryRaw  []byte
		linkSentAt *time.Time
		lastCallAt *time.Time
	)
	err := row.Scan(&p.ID, &p.Phone, &p.Name, &tier, &p.TotalExchanges, &linkSentAt, &flowRaw, &memoryRaw, &p.GreetingIdx, &lastCallAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.Tier = Tier(tier)
	p.PaymentLinkSentAt = linkSentAt
	p.LastCallAt = lastCallAt
	if len(flowRaw) > 0 {
		if err := json.Unmarshal(flowRaw, &p.Flow); err != nil {
			return nil, fmt.Errorf("decode flow: %w", err)
		}
	}
	if len(memoryRaw) > 0 {
		if err := json.Unmarshal(memoryRaw, &p.Memory); err != nil {
			return nil, fmt.Errorf("decode memory: %w", err)
		}
	}
	return &p, nil
}
