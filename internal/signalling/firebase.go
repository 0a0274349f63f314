package signalling

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/ShabbirHasan1/alt-sendme/internal/config"
	"github.com/ShabbirHasan1/alt-sendme/pkg/utils"
)

// FirebaseClient stores offer/answer pairs in the Realtime Database. The
// session code doubles as the transfer ticket handed to the receiver
// out-of-band.
type FirebaseClient struct {
	db  *db.Client
	ref *db.Ref
}

// NewFirebaseClient connects to the configured Realtime Database.
func NewFirebaseClient(ctx context.Context, cfg *config.FirebaseConfig) (*FirebaseClient, error) {
	opt := option.WithCredentialsFile(cfg.CredentialsPath)

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	return &FirebaseClient{
		db:  client,
		ref: client.NewRef("sessions"),
	}, nil
}

// Session is the signalling record exchanged through the database.
type Session struct {
	ID     string `json:"sessionId"`
	Offer  string `json:"offer"`
	Answer string `json:"answer"`
}

// CreateSession stores offer under a fresh code and returns the code.
func (f *FirebaseClient) CreateSession(ctx context.Context, offer string) (string, error) {
	code, err := utils.GenerateCode(utils.CodeLength)
	if err != nil {
		return "", fmt.Errorf("error generating session code: %w", err)
	}

	sessionRef := f.ref.Child(code)
	sessionData := map[string]any{
		"sessionId": code,
		"offer":     offer,
		"answer":    "",
	}
	if err := sessionRef.Set(ctx, sessionData); err != nil {
		return "", fmt.Errorf("error creating session: %w", err)
	}

	logrus.WithField("session", code).Debug("Signalling session created")
	return code, nil
}

// UpdateAnswer publishes the receiver's answer for an existing session.
func (f *FirebaseClient) UpdateAnswer(ctx context.Context, sessionID, answer string) error {
	var sessionData Session

	sessionRef := f.ref.Child(sessionID)
	if err := sessionRef.Get(ctx, &sessionData); err != nil {
		return fmt.Errorf("error checking session existence for %s: %w", sessionID, err)
	}
	if sessionData.ID == "" {
		return fmt.Errorf("session %s not found", sessionID)
	}

	updates := map[string]any{"answer": answer}
	if err := sessionRef.Update(ctx, updates); err != nil {
		return fmt.Errorf("error updating answer for session %s: %w", sessionID, err)
	}
	return nil
}

// WaitForAnswer polls the session until the receiver posts an answer or ctx
// is cancelled.
func (f *FirebaseClient) WaitForAnswer(ctx context.Context, sessionID string) (string, error) {
	sessionRef := f.ref.Child(sessionID)

	for {
		var sessionData struct {
			Answer string `json:"answer"`
		}
		if err := sessionRef.Get(ctx, &sessionData); err != nil {
			logrus.WithError(err).Debug("Answer poll failed, retrying")
		} else if sessionData.Answer != "" {
			return sessionData.Answer, nil
		}

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// DeleteSession removes the session record. Deleting a session that is
// already gone is not an error; cleanup must be idempotent.
func (f *FirebaseClient) DeleteSession(ctx context.Context, sessionID string) error {
	var sessionData Session

	sessionRef := f.ref.Child(sessionID)
	if err := sessionRef.Get(ctx, &sessionData); err != nil {
		return fmt.Errorf("error checking session existence for %s: %w", sessionID, err)
	}
	if sessionData.ID == "" {
		logrus.WithField("session", sessionID).Debug("Session already gone, skipping deletion")
		return nil
	}

	if err := sessionRef.Delete(ctx); err != nil {
		return fmt.Errorf("error deleting session %s: %w", sessionID, err)
	}
	return nil
}

// GetOffer fetches the sender's offer for a session code.
func (f *FirebaseClient) GetOffer(ctx context.Context, sessionID string) (string, error) {
	var sessionData Session

	sessionRef := f.ref.Child(sessionID)
	if err := sessionRef.Get(ctx, &sessionData); err != nil {
		return "", fmt.Errorf("error fetching session %s: %w", sessionID, err)
	}
	if sessionData.ID == "" || sessionData.Offer == "" {
		return "", fmt.Errorf("session %s not found or has no offer", sessionID)
	}

	return sessionData.Offer, nil
}
