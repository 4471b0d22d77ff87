/******************************************************************************
 *
 *  Description :
 *
 *  Messenger database initializer. Creates (or resets, or upgrades) the
 *  database schema and optionally loads sample accounts, grants,
 *  conversations and messages from a data file.
 *
 *****************************************************************************/
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/RinKhimera/fantribe-messenger/server/auth/basic"
	_ "github.com/RinKhimera/fantribe-messenger/server/db/mysql"
	_ "github.com/RinKhimera/fantribe-messenger/server/db/postgres"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	jcr "github.com/tinode/jsonco"
)

type configType struct {
	StoreConfig json.RawMessage `json:"store_config"`
}

type profile struct {
	Fn    string `json:"fn"`
	Photo string `json:"photo"`
}

/*
User object in data.json

	"createdAt": "-2400h",
	"username": "amelie",
	"passhash": "amelie123",
	"isCreator": true,
	"state": "ok",
	"public": {"fn": "Amelie Dubois", "photo": "amelie-64.jpg"}
*/
type User struct {
	CreatedAt string  `json:"createdAt"`
	Username  string  `json:"username"`
	Password  string  `json:"passhash"`
	IsCreator bool    `json:"isCreator"`
	State     string  `json:"state"`
	Public    profile `json:"public"`
}

/*
Grant object in data.json. Durations are relative to now, so a negative
"expiresAt" produces an already lapsed grant.

	"createdAt": "-720h",
	"subscriber": "marc",
	"creator": "amelie",
	"kind": "messaging_access",
	"expiresAt": "720h"
*/
type Grant struct {
	CreatedAt  string `json:"createdAt"`
	Subscriber string `json:"subscriber"`
	Creator    string `json:"creator"`
	Kind       string `json:"kind"`
	ExpiresAt  string `json:"expiresAt"`
}

/*
Conversation object in data.json

	"createdAt": "-700h",
	"creator": "amelie",
	"user": "marc",
	"blocked": false
*/
type Conversation struct {
	CreatedAt string `json:"createdAt"`
	Creator   string `json:"creator"`
	User      string `json:"user"`
	Blocked   bool   `json:"blocked"`
}

// Data is the full content of data.json.
type Data struct {
	Users         []User         `json:"users"`
	Grants        []Grant        `json:"grants"`
	Conversations []Conversation `json:"conversations"`
	Messages      []string       `json:"messages"`
}

func main() {
	var reset = flag.Bool("reset", false, "force database reset")
	var upgrade = flag.Bool("upgrade", false, "perform database version upgrade")
	var noInit = flag.Bool("no_init", false, "check that database exists but don't create if missing")
	var datafile = flag.String("data", "", "name of file with sample data to load")
	var conffile = flag.String("config", "./messenger.conf", "config of the database connection")

	flag.Parse()

	var data Data
	if *datafile != "" && *datafile != "-" {
		raw, err := os.ReadFile(*datafile)
		if err != nil {
			log.Fatalln("Failed to read sample data file:", err)
		}
		if err = json.Unmarshal(raw, &data); err != nil {
			log.Fatalln("Failed to parse sample data:", err)
		}
	}

	rand.Seed(time.Now().UnixNano())

	var config configType
	if file, err := os.Open(*conffile); err != nil {
		log.Fatalln("Failed to read config file:", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				log.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				log.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				log.Fatal("Failed to parse config file: ", err)
			}
		}
		file.Close()
	}

	err := store.Store.Open(1, config.StoreConfig)
	defer store.Store.Close()

	log.Println("Database", store.Store.GetAdapterName(), store.Store.GetAdapterVersion())

	if err != nil {
		if strings.Contains(err.Error(), "Database not initialized") {
			if *noInit {
				log.Fatalln("Database not found.")
			}
			log.Println("Database not found. Creating.")
		} else if strings.Contains(err.Error(), "Invalid database version") {
			msg := "Wrong DB version: expected " + strconv.Itoa(store.Store.GetAdapterVersion()) + ", got " +
				strconv.Itoa(store.Store.GetDbVersion()) + "."
			if *reset {
				log.Println(msg, "Dropping and recreating the database.")
			} else if *upgrade {
				log.Println(msg, "Upgrading the database.")
			} else {
				log.Fatalln(msg, "Use --reset to reset, --upgrade to upgrade.")
			}
		} else {
			log.Fatalln("Failed to init DB adapter:", err)
		}
	} else if *reset {
		log.Println("Database reset requested")
	} else {
		log.Println("Database exists, DB version is correct. All done.")
		os.Exit(0)
	}

	if *upgrade {
		err = store.Store.UpgradeDb(config.StoreConfig)
		if err == nil {
			log.Println("Database successfully upgraded.")
		}
	} else {
		err = store.Store.InitDb(config.StoreConfig, true)
		if err == nil {
			var action string
			if *reset {
				action = "reset"
			} else {
				action = "initialized"
			}
			log.Println("Database", action)
		}
	}

	if err != nil {
		log.Fatalln("Failed to init DB:", err)
	}

	if !*upgrade {
		genDb(&data)
	} else if len(data.Users) > 0 {
		log.Println("Sample data ignored. All done.")
	}
	os.Exit(0)
}
