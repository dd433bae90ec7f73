package userstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/nao1215/elara/pkg/migration"
	"go.uber.org/zap"

	// SQLiteドライバ
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite はローカル開発用のStore実装。
// トークンによるアクセス制御を行わないため、本番環境で使ってはならない。
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite はpathのSQLiteデータベースを開き、マイグレーションを適用する。
// pathに":memory:"を指定するとインメモリデータベースになる。
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}
	// SQLiteは書き込みが直列化されるため、接続を1本に制限する。
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	zap.L().Warn("SQLiteユーザーストアはアクセス制御を行いません。ローカル開発専用です",
		zap.String("path", path),
	)
	return &SQLite{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLite) Close() error {
	return s.db.Close()
}

const selectProfile = `
SELECT id, full_name, avatar_url, wallet_id, wallet_address, wallet_chain_type,
       wallet_chain_id, wallet_index, wallet_client, wallet_connector_type,
       wallet_recovery_method, privy_user_id, updated_at
FROM profiles WHERE id = ?`

// GetProfile はidのプロフィールを取得する。tokenは使用しない。
func (s *SQLite) GetProfile(ctx context.Context, _ string, id string) (*Profile, error) {
	var (
		p         Profile
		updatedAt string
		index     sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, selectProfile, id).Scan(
		&p.ID, &p.FullName, &p.AvatarURL, &p.WalletID, &p.WalletAddress, &p.WalletChainType,
		&p.WalletChainID, &index, &p.WalletClient, &p.WalletConnectorType,
		&p.WalletRecoveryMethod, &p.PrivyUserID, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗: %w", err)
	}
	if index.Valid {
		v := int(index.Int64)
		p.WalletIndex = &v
	}
	p.UpdatedAt = &updatedAt
	return &p, nil
}

// UpsertProfile はidのプロフィールを作成または部分更新する。
// nilのフィールドは既存の値を維持する。
func (s *SQLite) UpsertProfile(ctx context.Context, token, id string, u ProfileUpdate) (*Profile, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (
			id, full_name, avatar_url, wallet_id, wallet_address, wallet_chain_type,
			wallet_chain_id, wallet_index, wallet_client, wallet_connector_type,
			wallet_recovery_method, privy_user_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = COALESCE(excluded.full_name, profiles.full_name),
			avatar_url = COALESCE(excluded.avatar_url, profiles.avatar_url),
			wallet_id = COALESCE(excluded.wallet_id, profiles.wallet_id),
			wallet_address = COALESCE(excluded.wallet_address, profiles.wallet_address),
			wallet_chain_type = COALESCE(excluded.wallet_chain_type, profiles.wallet_chain_type),
			wallet_chain_id = COALESCE(excluded.wallet_chain_id, profiles.wallet_chain_id),
			wallet_index = COALESCE(excluded.wallet_index, profiles.wallet_index),
			wallet_client = COALESCE(excluded.wallet_client, profiles.wallet_client),
			wallet_connector_type = COALESCE(excluded.wallet_connector_type, profiles.wallet_connector_type),
			wallet_recovery_method = COALESCE(excluded.wallet_recovery_method, profiles.wallet_recovery_method),
			privy_user_id = COALESCE(excluded.privy_user_id, profiles.privy_user_id),
			updated_at = datetime('now')`,
		id, nullable(u.FullName), nullable(u.AvatarURL), nullable(u.WalletID), nullable(u.WalletAddress),
		nullable(u.WalletChainType), nullable(u.WalletChainID), nullable(u.WalletIndex), nullable(u.WalletClient),
		nullable(u.WalletConnectorType), nullable(u.WalletRecoveryMethod), nullable(u.PrivyUserID),
	)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの保存に失敗: %w", err)
	}
	return s.GetProfile(ctx, token, id)
}

// UpsertCrossmintWallet はcrossmintテーブルにウォレット情報を作成または更新する。
func (s *SQLite) UpsertCrossmintWallet(ctx context.Context, _ string, w CrossmintWallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crossmint (id, chain_type, type, address, "adminSigner_type", "adminSigner_email", "adminSigner_locator")
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chain_type = excluded.chain_type,
			type = excluded.type,
			address = excluded.address,
			"adminSigner_type" = excluded."adminSigner_type",
			"adminSigner_email" = excluded."adminSigner_email",
			"adminSigner_locator" = excluded."adminSigner_locator",
			updated_at = datetime('now')`,
		w.ID, w.ChainType, w.Type, w.Address, w.AdminSignerType, w.AdminSignerEmail, w.AdminSignerLocator,
	)
	if err != nil {
		return fmt.Errorf("決済ウォレット情報の保存に失敗: %w", err)
	}
	return nil
}

// nullable はnilポインタをNULLとして、それ以外は値としてバインドする。
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
