package keymgmt

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/model"
)

// Store persists registry snapshots: the key to account mapping and the
// kind of each key source. Raw secrets are never part of a snapshot; a
// restored raw key source signs only after the key is imported again.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&model.KeyedAccount{}, &model.KeySourceRecord{})
}

func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	var accounts []model.KeyedAccount
	for pk, ids := range snap.Accounts {
		for _, id := range ids {
			accounts = append(accounts, model.KeyedAccount{PublicKey: pk.String(), AccountId: id})
		}
	}

	var sources []model.KeySourceRecord
	for pk, source := range snap.Sources {
		sources = append(sources, model.KeySourceRecord{
			PublicKey:      pk.String(),
			Kind:           string(source.Kind),
			DerivationPath: source.DerivationPath,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(accounts) > 0 {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&accounts)
			if result.Error != nil {
				return result.Error
			}
		}
		if len(sources) > 0 {
			result := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&sources)
			if result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Accounts: make(map[chain.PublicKey][]chain.AccountID),
		Sources:  make(map[chain.PublicKey]KeySource),
	}

	var accounts []model.KeyedAccount
	if result := s.db.WithContext(ctx).Find(&accounts); result.Error != nil {
		return snap, errors.Wrap(result.Error, "loading keyed accounts")
	}
	for _, a := range accounts {
		pk, err := chain.ParsePublicKey(a.PublicKey)
		if err != nil {
			log.Warn().Err(err).Str("public_key", a.PublicKey).Msg("Skipping stored account with invalid key")
			continue
		}
		snap.Accounts[pk] = append(snap.Accounts[pk], a.AccountId)
	}

	var sources []model.KeySourceRecord
	if result := s.db.WithContext(ctx).Find(&sources); result.Error != nil {
		return snap, errors.Wrap(result.Error, "loading key sources")
	}
	for _, rec := range sources {
		pk, err := chain.ParsePublicKey(rec.PublicKey)
		if err != nil {
			log.Warn().Err(err).Str("public_key", rec.PublicKey).Msg("Skipping stored source with invalid key")
			continue
		}
		snap.Sources[pk] = KeySource{Kind: SourceKind(rec.Kind), DerivationPath: rec.DerivationPath}
	}

	return snap, nil
}
