package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vietcart/api/internal/domain"
	pfirestore "github.com/vietcart/api/internal/platform/firestore"
)

const addressesCollectionPattern = "users/%s/addresses"

// AddressRepository stores shipping addresses under each user document.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns the user's addresses, newest first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collectionRef(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var addresses []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}
		addresses = append(addresses, doc.toDomain(snap.Ref.ID, userID))
	}
	return addresses, nil
}

// Get loads a single address.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collectionRef(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", id, err)
	}
	return doc.toDomain(id, userID), nil
}

// Upsert creates or replaces an address. A nil addressID allocates a new
// document. Marking the address default clears the flag on the others in the
// same transaction.
func (r *AddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collectionRef(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	now := time.Now().UTC()
	var ref *firestore.DocumentRef
	if addressID != nil && strings.TrimSpace(*addressID) != "" {
		ref = coll.Doc(strings.TrimSpace(*addressID))
	} else {
		ref = coll.NewDoc()
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := newAddressDocument(addr)
		doc.UpdatedAt = now

		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing addressDocument
			if decodeErr := snap.DataTo(&existing); decodeErr == nil && !existing.CreatedAt.IsZero() {
				doc.CreatedAt = existing.CreatedAt
			}
		case status.Code(err) == codes.NotFound:
			// New document.
		default:
			return err
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}

		var others []*firestore.DocumentRef
		if doc.IsDefault {
			others, err = r.readOtherDefaults(ctx, tx, coll, ref.ID)
			if err != nil {
				return err
			}
		}

		for _, other := range others {
			if err := tx.Update(other, []firestore.Update{
				{Path: "isDefault", Value: false},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}

		saved = doc.toDomain(ref.ID, userID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// Delete removes an address.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collectionRef(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

// SetDefault marks the address as the user's default and clears the flag on
// every other address in one transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collectionRef(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address id is required")
	}

	now := time.Now().UTC()
	var updated domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := coll.Doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", id, err)
		}

		others, err := r.readOtherDefaults(ctx, tx, coll, id)
		if err != nil {
			return err
		}

		for _, other := range others {
			if err := tx.Update(other, []firestore.Update{
				{Path: "isDefault", Value: false},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		doc.IsDefault = true
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}

		updated = doc.toDomain(id, userID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.setDefault", err)
	}
	return updated, nil
}

func (r *AddressRepository) readOtherDefaults(ctx context.Context, tx *firestore.Transaction, coll *firestore.CollectionRef, exceptID string) ([]*firestore.DocumentRef, error) {
	iter := tx.Documents(coll.Where("isDefault", "==", true))
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if snap.Ref.ID == exceptID {
			continue
		}
		refs = append(refs, snap.Ref)
	}
	return refs, nil
}

func (r *AddressRepository) collectionRef(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressesCollectionPattern, uid)), nil
}

type addressDocument struct {
	FullName  string    `firestore:"fullName"`
	Phone     string    `firestore:"phone"`
	Line1     string    `firestore:"line1"`
	Ward      string    `firestore:"ward"`
	District  string    `firestore:"district"`
	City      string    `firestore:"city"`
	IsDefault bool      `firestore:"isDefault"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		FullName:  strings.TrimSpace(addr.FullName),
		Phone:     strings.TrimSpace(addr.Phone),
		Line1:     strings.TrimSpace(addr.Line1),
		Ward:      strings.TrimSpace(addr.Ward),
		District:  strings.TrimSpace(addr.District),
		City:      strings.TrimSpace(addr.City),
		IsDefault: addr.IsDefault,
		CreatedAt: addr.CreatedAt.UTC(),
		UpdatedAt: addr.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(id, userID string) domain.Address {
	return domain.Address{
		ID:        id,
		UserID:    userID,
		FullName:  d.FullName,
		Phone:     d.Phone,
		Line1:     d.Line1,
		Ward:      d.Ward,
		District:  d.District,
		City:      d.City,
		IsDefault: d.IsDefault,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
