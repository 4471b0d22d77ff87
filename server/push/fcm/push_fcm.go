// Package fcm implements push notification plugin for Google FCM backend.
// Push notifications for Android, iOS and web clients are sent through Google's
// Firebase Cloud Messaging service.
package fcm

import (
	"context"
	"encoding/json"
	"errors"

	fbase "firebase.google.com/go"
	fcmv1 "firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
	"github.com/RinKhimera/fantribe-messenger/server/push"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	t "github.com/RinKhimera/fantribe-messenger/server/store/types"
)

var handler Handler

// Size of the input channel buffer.
const defaultBuffer = 32

// Handler represents the push handler; implements push.Handler interface.
type Handler struct {
	initialized bool
	input       chan *push.Receipt
	stop        chan bool
	client      *fcmv1.Client
}

type configType struct {
	Enabled bool `json:"enabled"`
	Buffer  int  `json:"buffer"`
	// Pushes are silent data messages when true, visible notifications
	// otherwise.
	DataOnly bool `json:"data_only"`
	// Path to the service account credentials file.
	Credentials     string          `json:"credentials_file"`
	CredentialsJson json.RawMessage `json:"credentials"`
}

// Init initializes the push handler.
func (Handler) Init(jsonconf json.RawMessage) (bool, error) {
	if handler.initialized {
		return false, errors.New("already initialized")
	}

	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return false, errors.New("failed to parse config: " + err.Error())
	}

	handler.initialized = true

	if !config.Enabled {
		return false, nil
	}

	var opt option.ClientOption
	if config.Credentials != "" {
		opt = option.WithCredentialsFile(config.Credentials)
	} else if len(config.CredentialsJson) > 0 {
		opt = option.WithCredentialsJSON(config.CredentialsJson)
	} else {
		return false, errors.New("missing credentials")
	}

	ctx := context.Background()
	app, err := fbase.NewApp(ctx, &fbase.Config{}, opt)
	if err != nil {
		return false, err
	}

	handler.client, err = app.Messaging(ctx)
	if err != nil {
		return false, err
	}

	if config.Buffer <= 0 {
		config.Buffer = defaultBuffer
	}

	handler.input = make(chan *push.Receipt, config.Buffer)
	handler.stop = make(chan bool, 1)

	go func() {
		for {
			select {
			case rcpt := <-handler.input:
				go sendNotifications(rcpt, &config)
			case <-handler.stop:
				return
			}
		}
	}()

	return true, nil
}

func payloadToData(pl *push.Payload) map[string]string {
	if pl == nil {
		return nil
	}

	return map[string]string{
		"what":    pl.What,
		"conv":    pl.Conversation,
		"from":    pl.From,
		"msg":     pl.MsgId,
		"ts":      pl.Timestamp.Format("2006-01-02T15:04:05.999Z07:00"),
		"preview": pl.Preview,
	}
}

func sendNotifications(rcpt *push.Receipt, config *configType) {
	ctx := context.Background()

	uids := make([]t.Uid, 0, len(rcpt.To))
	for uid, to := range rcpt.To {
		// Fully delivered over live connections, nothing to push.
		if to.Delivered > 0 && rcpt.Payload.What != push.ActMsg {
			continue
		}
		uids = append(uids, uid)
	}
	if len(uids) == 0 {
		return
	}

	devices, count, err := store.Devices.GetAll(uids...)
	if err != nil {
		logs.Warn.Println("fcm: failed to get devices", err)
		return
	}
	if count == 0 {
		return
	}

	data := payloadToData(&rcpt.Payload)

	for uid, devList := range devices {
		for i := range devList {
			d := &devList[i]
			if d.DeviceId == "" {
				continue
			}

			msg := fcmv1.Message{
				Token: d.DeviceId,
				Data:  data,
			}
			if !config.DataOnly && !rcpt.Payload.Silent {
				msg.Notification = &fcmv1.Notification{
					Title: "Nouveau message",
					Body:  rcpt.Payload.Preview,
				}
			}

			_, err = handler.client.Send(ctx, &msg)
			if err != nil {
				if fcmv1.IsRegistrationTokenNotRegistered(err) {
					// Token is no longer valid.
					store.Devices.Delete(uid, d.DeviceId)
				} else if fcmv1.IsMessageRateExceeded(err) ||
					fcmv1.IsServerUnavailable(err) ||
					fcmv1.IsInternal(err) ||
					fcmv1.IsUnknown(err) {
					// Transient errors. Stop sending this batch.
					logs.Warn.Println("fcm: transient error", err)
					return
				} else if fcmv1.IsMismatchedCredential(err) || fcmv1.IsInvalidArgument(err) {
					// Config errors.
					logs.Warn.Println("fcm: push failed", err)
					return
				}
			}
		}
	}
}

// IsReady checks if the push handler has been initialized.
func (Handler) IsReady() bool {
	return handler.input != nil
}

// Push returns a channel that the server will use to send messages to.
// If the adapter blocks, the message will be dropped.
func (Handler) Push() chan<- *push.Receipt {
	return handler.input
}

// Stop shuts down the handler.
func (Handler) Stop() {
	handler.stop <- true
}

func init() {
	push.Register("fcm", &handler)
}
