package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/clients"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// envelope is the response body of every identity API endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type errorBody struct {
	Message string              `json:"message"`
	Details map[string][]string `json:"details"`
}

// userResponse is the API's JSON shape of a user.
type userResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// accountResponse is the API's JSON shape of an account.
type accountResponse struct {
	ID                string    `json:"_id"`
	UserID            string    `json:"userId"`
	Name              string    `json:"name"`
	Image             string    `json:"image"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (u *userResponse) toDomain() domain.User {
	return domain.User{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (a *accountResponse) toDomain() domain.Account {
	return domain.Account{
		ID:                a.ID,
		UserID:            a.UserID,
		Name:              a.Name,
		Image:             a.Image,
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		CreatedAt:         a.CreatedAt,
	}
}

// translateSlice converts a slice of DTOs. The result is never nil.
func translateSlice[E, D any](items []E, fn func(*E) D) []D {
	out := make([]D, len(items))
	for i := range items {
		out[i] = fn(&items[i])
	}

	return out
}

// decodeData unwraps a successful envelope into out. out may be nil for
// endpoints that return no data.
func decodeData(resp *clients.Response, out any) error {
	var env envelope
	if err := resp.Decode(&env); err != nil {
		return invalidResponse(resp.Status, err)
	}

	if !env.Success {
		if env.Error != nil {
			return rebuildFailure(resp.Status, env.Error, nil)
		}

		return invalidResponse(resp.Status, errors.New("success flag not set"))
	}

	if out == nil {
		return nil
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return invalidResponse(resp.Status, errors.New("missing data"))
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return invalidResponse(resp.Status, err)
	}

	return nil
}

// translateFailure rebuilds the taxonomy kind of a failed call from its
// error envelope. Failures without a response, or whose body is not an
// error envelope, are returned unchanged.
func translateFailure(resp *clients.Response, err error) error {
	var requestErr *domain.RequestError
	if resp == nil || !errors.As(err, &requestErr) {
		return err
	}

	var env envelope
	if decodeErr := resp.Decode(&env); decodeErr != nil || env.Error == nil {
		return err
	}

	return rebuildFailure(resp.Status, env.Error, err)
}

func rebuildFailure(status int, body *errorBody, cause error) error {
	details := domain.FieldErrors(body.Details)

	switch status {
	case http.StatusBadRequest:
		if len(details) == 0 {
			details = domain.FieldErrors{}
		}

		return &domain.ValidationError{FieldErrors: details}

	case http.StatusNotFound:
		resource, found := strings.CutSuffix(body.Message, " not found")
		if !found || resource == "" {
			resource = "Resource"
		}

		return &domain.NotFoundError{Resource: resource}

	default:
		return &domain.RequestError{
			Status:      status,
			Message:     body.Message,
			FieldErrors: details,
			Cause:       cause,
		}
	}
}

func invalidResponse(status int, err error) error {
	return &domain.RequestError{
		Status:  status,
		Message: "invalid response from identity API",
		Cause:   fmt.Errorf("decoding envelope: %w", err),
	}
}
