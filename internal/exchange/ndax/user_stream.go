package ndax

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"ndax-connector/internal/core"
)

// UserStream is one authenticated websocket session delivering raw account
// event frames. Authentication failure is fatal to the session; the owning
// supervisor decides about retries.
type UserStream struct {
	conn      *websocket.Conn
	accountID int64
	omsID     int64
	seq       int64
	keepalive time.Duration
}

func (c *Client) NewUserStream(ctx context.Context, keepalive time.Duration) (*UserStream, error) {
	if c.wsBaseURL == "" {
		return nil, errors.New("ws base url required")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsBaseURL, nil)
	if err != nil {
		return nil, err
	}
	stream := &UserStream{conn: conn, omsID: c.omsID, keepalive: keepalive}
	if err := stream.authenticate(ctx, c); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := stream.subscribeAccountEvents(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return stream, nil
}

func (u *UserStream) AccountID() int64 { return u.accountID }

func (u *UserStream) Close() error {
	return u.conn.Close()
}

func (u *UserStream) authenticate(ctx context.Context, c *Client) error {
	if err := u.sendRequest(ctx, EndpointAuthenticateUser, c.authFields()); err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = u.conn.SetReadDeadline(deadline)
	for {
		_, raw, err := u.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrAuthenticationFailed, err)
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrAuthenticationFailed, err)
		}
		if env.Endpoint != EndpointAuthenticateUser {
			continue
		}
		var result AuthResult
		if err := DecodePayload(env, &result); err != nil {
			return fmt.Errorf("%w: %v", core.ErrAuthenticationFailed, err)
		}
		if !result.Authenticated {
			reason := result.ErrorMsg
			if reason == "" {
				reason = "venue reported Authenticated=false"
			}
			return fmt.Errorf("%w: %s", core.ErrAuthenticationFailed, reason)
		}
		u.accountID = result.User.AccountID
		return nil
	}
}

func (u *UserStream) subscribeAccountEvents(ctx context.Context) error {
	payload := map[string]string{
		"AccountId": strconv.FormatInt(u.accountID, 10),
		"OMSId":     strconv.FormatInt(u.omsID, 10),
	}
	return u.sendRequest(ctx, EndpointSubscribeAccount, payload)
}

func (u *UserStream) sendRequest(ctx context.Context, endpoint string, payload any) error {
	// Client-originated sequence numbers are even by venue convention.
	u.seq += 2
	frame, err := EncodeRequest(u.seq, endpoint, payload)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = u.conn.SetWriteDeadline(deadline)
	return u.conn.WriteMessage(websocket.TextMessage, frame)
}

// Frames starts the read loop and returns the raw frame channel plus a
// best-effort error channel. The frame channel closes when the loop exits.
func (u *UserStream) Frames(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errCh := make(chan error, 4)
	done := make(chan struct{})

	reportErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errCh <- err:
		default:
		}
	}

	readTimeout := 45 * time.Second
	if u.keepalive > 0 {
		readTimeout = u.keepalive * 3
		if readTimeout < 30*time.Second {
			readTimeout = 30 * time.Second
		}
	}
	u.conn.SetPongHandler(func(string) error {
		return u.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		defer close(frames)
		defer u.conn.Close()

		for {
			_ = u.conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, data, err := u.conn.ReadMessage()
			if err != nil {
				reportErr(err)
				return
			}
			if len(data) == 0 {
				continue
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	if u.keepalive > 0 {
		go func() {
			ticker := time.NewTicker(u.keepalive)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := u.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						reportErr(err)
						_ = u.conn.Close()
						return
					}
				case <-done:
					return
				case <-ctx.Done():
					_ = u.conn.Close()
					return
				}
			}
		}()
	}

	return frames, errCh
}
