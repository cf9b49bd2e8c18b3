// member.go - Member registry.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/member"
)

const memberColumns = `id, member_number, full_name, email, phone_number,
	date_of_birth, shares_owned, status, joined_at, created_at, updated_at`

func (s *Store) InsertMember(ctx context.Context, m member.Member) error {
	query := `
		INSERT INTO members
		(id, member_number, full_name, email, phone_number, date_of_birth,
		 shares_owned, status, joined_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.MemberNumber, m.FullName, m.Email, m.PhoneNumber,
		nullTime(m.DateOfBirth), m.SharesOwned, m.Status,
		formatTime(m.JoinedAt), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id ledger.MemberID) (*member.Member, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE id = ?", id)
	return scanMember(row)
}

func (s *Store) GetMemberByNumber(ctx context.Context, number string) (*member.Member, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE member_number = ?", number)
	return scanMember(row)
}

func (s *Store) ListMembers(ctx context.Context, limit int) ([]member.Member, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM members ORDER BY joined_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *Store) UpdateMember(ctx context.Context, m member.Member) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET full_name = ?, email = ?, phone_number = ?, date_of_birth = ?,
		    status = ?, updated_at = ?
		WHERE id = ?`,
		m.FullName, m.Email, m.PhoneNumber, nullTime(m.DateOfBirth),
		m.Status, formatTime(m.UpdatedAt), m.ID)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return requireRow(res, "member", string(m.ID))
}

// UpdateSharesOwned adjusts the denormalized share counter.
func (s *Store) UpdateSharesOwned(ctx context.Context, id ledger.MemberID, delta int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members SET shares_owned = shares_owned + ?, updated_at = ?
		WHERE id = ?`,
		delta, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update shares owned: %w", err)
	}
	return requireRow(res, "member", string(id))
}

func scanMember(row rowScanner) (*member.Member, error) {
	var (
		m                    member.Member
		email, phone         sql.NullString
		dob                  sql.NullString
		joinedAt             string
		createdAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.MemberNumber, &m.FullName, &email, &phone,
		&dob, &m.SharesOwned, &m.Status, &joinedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}

	m.Email = email.String
	m.PhoneNumber = phone.String
	m.DateOfBirth = scanNullTime(dob)
	m.JoinedAt = parseTime(joinedAt)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}
