package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

func genDb(data *Data) {
	var err error

	if len(data.Users) == 0 {
		log.Println("No data provided, stopping")
		return
	}

	authHandler := store.Store.GetAuthHandler("basic")
	authHandler.Init([]byte(`{"add_to_tags": true}`), "basic")

	nameIndex := make(map[string]types.Uid, len(data.Users))

	log.Println("Generating users...")

	for _, uu := range data.Users {
		state, err := parseUserState(uu.State)
		if err != nil {
			log.Fatal(err)
		}
		user := types.User{
			State:     state,
			IsCreator: uu.IsCreator,
			Public:    profile{Fn: uu.Public.Fn, Photo: uu.Public.Photo},
		}
		user.CreatedAt = getCreatedTime(uu.CreatedAt)

		if _, err := store.Users.Create(&user); err != nil {
			log.Fatal(err)
		}

		passwd := uu.Password
		if passwd == "(random)" {
			passwd = getPassword(8)
		}
		if _, err := authHandler.AddRecord(&auth.Rec{Uid: user.Uid(), AuthLevel: auth.LevelAuth},
			[]byte(uu.Username+":"+passwd), ""); err != nil {

			log.Fatal(err)
		}
		nameIndex[uu.Username] = user.Uid()

		fmt.Println("usr;" + uu.Username + ";" + user.Uid().UserId() + ";" + passwd)
	}

	log.Println("Generating grants...")

	for _, gg := range data.Grants {
		subscriber, ok := nameIndex[gg.Subscriber]
		if !ok {
			log.Fatalln("Grant references unknown subscriber", gg.Subscriber)
		}
		creator, ok := nameIndex[gg.Creator]
		if !ok {
			log.Fatalln("Grant references unknown creator", gg.Creator)
		}
		kind := types.GrantKind(gg.Kind)
		if kind != types.GrantMessagingAccess && kind != types.GrantContentAccess {
			log.Fatalln("Unknown grant kind", gg.Kind)
		}

		grant := &types.Grant{
			Subscriber: subscriber.String(),
			Creator:    creator.String(),
			Kind:       kind,
			ExpiresAt:  getCreatedTime(gg.ExpiresAt),
		}
		grant.CreatedAt = getCreatedTime(gg.CreatedAt)

		if _, err := store.Grants.Upsert(grant); err != nil {
			log.Fatal(err)
		}

		fmt.Println("grant;" + gg.Subscriber + ";" + gg.Creator + ";" + gg.Kind +
			";expires=" + grant.ExpiresAt.Format(time.RFC3339))
	}

	log.Println("Generating conversations...")

	convs := make([]*types.Conversation, 0, len(data.Conversations))
	for _, cc := range data.Conversations {
		creator, ok := nameIndex[cc.Creator]
		if !ok {
			log.Fatalln("Conversation references unknown creator", cc.Creator)
		}
		user, ok := nameIndex[cc.User]
		if !ok {
			log.Fatalln("Conversation references unknown user", cc.User)
		}

		conv, err := store.Conversations.GetOrCreate(creator, user)
		if err != nil {
			log.Fatal(err)
		}
		if cc.Blocked {
			if err = store.Conversations.SetLock(conv.Name, types.LockAdminBlocked); err != nil {
				log.Fatal(err)
			}
		}
		convs = append(convs, conv)

		fmt.Println("cnv;" + cc.Creator + ";" + cc.User + ";" + conv.Name)
	}

	if len(data.Messages) > 0 && len(convs) > 0 {
		log.Println("Generating messages...")

		now := time.Now().UTC().Round(time.Millisecond)
		timestamp := now.Add(time.Hour * -12)

		toInsert := 96
		// Starting message interval, microseconds.
		increment := 3600 * 1000
		convIdx := rand.Intn(len(convs) * 2)
		for i := 0; i < toInsert; i++ {
			// At least 20% of subsequent messages should come from the same
			// sender in the same conversation.
			if rand.Intn(5) > 0 {
				convIdx = rand.Intn(len(convs) * 2)
			}

			conv := convs[convIdx/2]
			var from string
			if convIdx%2 == 0 {
				from = conv.Creator
			} else {
				from = conv.User
			}

			str := data.Messages[i%len(data.Messages)]
			// Time between messages is increasing as the loop approaches 'now'.
			timestamp = timestamp.Add(time.Microsecond * time.Duration(rand.Intn(increment)))
			msg := &types.Message{
				Conversation: conv.Name,
				From:         from,
				Text:         str,
			}
			msg.CreatedAt = timestamp
			if _, err = store.Messages.Save(msg, truncatePreview(str)); err != nil {
				log.Fatal("Failed to insert message: ", err)
			}

			// New increment: remaining time until 'now' divided by the number
			// of messages left to insert, converted to milliseconds.
			increment = int(now.Sub(timestamp).Nanoseconds() / int64(toInsert-i) / 1000000)
		}
	}

	log.Println("All done.")
}

// Go json cannot unmarshal Duration from a string, thus this hack.
func getCreatedTime(delta string) time.Time {
	dd, err := time.ParseDuration(delta)
	if err != nil && delta != "" {
		log.Fatal("Invalid duration string ", delta)
	}
	return time.Now().UTC().Round(time.Millisecond).Add(dd)
}

func parseUserState(s string) (types.ObjState, error) {
	switch s {
	case "", "ok":
		return types.StateOK, nil
	case "susp":
		return types.StateSuspended, nil
	case "del":
		return types.StateDeleted, nil
	}
	return types.StateOK, fmt.Errorf("unknown account state '%s'", s)
}

// truncatePreview cuts the message text down to a conversation-list preview.
func truncatePreview(s string) string {
	const maxLen = 80
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

// getPassword generates a random password of length n.
func getPassword(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-/.+?=&"

	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
