package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

const (
	usersCollection    = "users"
	accountsCollection = "accounts"
)

type userDocument struct {
	ID        bson.ObjectID `bson:"_id"`
	Name      string        `bson:"name"`
	Username  string        `bson:"username"`
	Email     string        `bson:"email"`
	Image     string        `bson:"image,omitempty"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Username:  d.Username,
		Email:     d.Email,
		Image:     d.Image,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func newUserDocument(u *domain.User, now time.Time) userDocument {
	return userDocument{
		ID:        bson.NewObjectID(),
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Image:     u.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type accountDocument struct {
	ID                bson.ObjectID `bson:"_id"`
	UserID            bson.ObjectID `bson:"userId"`
	Name              string        `bson:"name"`
	Image             string        `bson:"image,omitempty"`
	Provider          string        `bson:"provider"`
	ProviderAccountID string        `bson:"providerAccountId"`
	CreatedAt         time.Time     `bson:"createdAt"`
}

func (d *accountDocument) toDomain() *domain.Account {
	return &domain.Account{
		ID:                d.ID.Hex(),
		UserID:            d.UserID.Hex(),
		Name:              d.Name,
		Image:             d.Image,
		Provider:          d.Provider,
		ProviderAccountID: d.ProviderAccountID,
		CreatedAt:         d.CreatedAt,
	}
}

// profileUpdate builds the $set document for a partial profile update.
func profileUpdate(changes domain.ProfileChanges, now time.Time) bson.D {
	set := bson.D{{Key: "updatedAt", Value: now}}

	if changes.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *changes.Name})
	}

	if changes.Image != nil {
		set = append(set, bson.E{Key: "image", Value: *changes.Image})
	}

	return bson.D{{Key: "$set", Value: set}}
}

// objectID parses a hex id. An id that cannot exist is reported as missing.
func objectID(id, resource string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, domain.NewNotFoundError(resource)
	}

	return oid, nil
}
