// Package rest consumes the campus REST surface: message backlogs, room
// subjects (clubs, projects) and attachment uploads. Every call carries the
// session's bearer credential when one exists; without it only publicly
// readable resources are reachable.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/pkg/apperrors"
	"github.com/campusconnect/messaging/session"
)

// Client talks to the campus REST API
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	// sessionFn yields the current session, nil when signed out
	sessionFn func() *session.Session
}

// NewClient creates a REST client for the given base URL. sessionFn is
// consulted per request so sign-in/sign-out take effect immediately.
func NewClient(baseURL string, timeout time.Duration, sessionFn func() *session.Session, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		sessionFn: sessionFn,
	}
}

// Messages fetches the durable backlog for a room, ascending by arrival
func (c *Client) Messages(ctx context.Context, room models.RoomKey) ([]models.Message, error) {
	var messages []models.Message
	if err := c.getJSON(ctx, "/messages/"+room.String(), &messages); err != nil {
		return nil, apperrors.NewHistoryLoadError(fmt.Sprintf("fetch history for %s: %v", room, err))
	}
	return messages, nil
}

// clubPayload is the wire shape of a club; relationship fields may be bare
// ids or embedded objects, models.Ref absorbs both.
type clubPayload struct {
	ID       models.Ref   `json:"_id"`
	ClubHead models.Ref   `json:"clubHead"`
	Faculty  models.Ref   `json:"faculty"`
	Members  []models.Ref `json:"members"`
}

// projectPayload is the wire shape of a project; projects have no head
type projectPayload struct {
	ID      models.Ref   `json:"_id"`
	Faculty models.Ref   `json:"faculty"`
	Members []models.Ref `json:"members"`
}

// Club fetches a club subject
func (c *Client) Club(ctx context.Context, id string) (*models.Subject, error) {
	var payload clubPayload
	if err := c.getJSON(ctx, "/clubs/"+id, &payload); err != nil {
		return nil, err
	}
	return &models.Subject{
		Kind:    models.SubjectClub,
		ID:      payload.ID.ID(),
		Head:    payload.ClubHead,
		Faculty: payload.Faculty,
		Members: payload.Members,
	}, nil
}

// Project fetches a project subject
func (c *Client) Project(ctx context.Context, id string) (*models.Subject, error) {
	var payload projectPayload
	if err := c.getJSON(ctx, "/projects/"+id, &payload); err != nil {
		return nil, err
	}
	return &models.Subject{
		Kind:    models.SubjectProject,
		ID:      payload.ID.ID(),
		Faculty: payload.Faculty,
		Members: payload.Members,
	}, nil
}

// Subject fetches the subject a room is scoped to. The general room has no
// subject and yields nil without a request.
func (c *Client) Subject(ctx context.Context, room models.RoomKey) (*models.Subject, error) {
	switch room.Kind() {
	case models.RoomKindClub:
		return c.Club(ctx, room.SubjectID())
	case models.RoomKindProject:
		return c.Project(ctx, room.SubjectID())
	case models.RoomKindGeneral:
		return nil, nil
	}
	return nil, apperrors.NewCustomError(apperrors.ErrInvalidRoomKey, "no subject for room "+room.String())
}

// Upload posts an attachment to the discussion upload endpoint for the given
// scope ("projects/discussion", "clubs/discussion") and returns the stored
// media URL. Transcoding and storage are the server's concern.
func (c *Client) Upload(ctx context.Context, scope, filename, contentType string, content io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, err.Error())
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, err.Error())
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.Trim(scope, "/")+"/upload", body)
	if err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, err.Error())
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Warn().Int("status", resp.StatusCode).Str("scope", scope).Msg("Attachment upload rejected")
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, fmt.Sprintf("upload returned status %d", resp.StatusCode))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, err.Error())
	}
	if result.URL == "" {
		return "", apperrors.NewCustomError(apperrors.ErrUploadFailed, "upload response carries no url")
	}

	c.logger.Debug().Str("scope", scope).Str("url", result.URL).Msg("Attachment uploaded")
	return result.URL, nil
}

// getJSON performs an authorized GET and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.NewAccessDeniedError(fmt.Sprintf("GET %s returned status %d", path, resp.StatusCode))
	default:
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// authorize attaches the bearer credential when a session exists
func (c *Client) authorize(req *http.Request) {
	if c.sessionFn == nil {
		return
	}
	if sess := c.sessionFn(); sess != nil && sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}
}
