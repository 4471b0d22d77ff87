/******************************************************************************
 *
 *  Description :
 *
 *    Setup & initialization.
 *
 *****************************************************************************/

package main

import (
	"encoding/base64"
	"encoding/json"
	"expvar"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	gh "github.com/gorilla/handlers"
	jcr "github.com/tinode/jsonco"

	"github.com/RinKhimera/fantribe-messenger/server/concurrency"
	"github.com/RinKhimera/fantribe-messenger/server/logs"
	"github.com/RinKhimera/fantribe-messenger/server/push"
	"github.com/RinKhimera/fantribe-messenger/server/queue"
	"github.com/RinKhimera/fantribe-messenger/server/store"

	// Authenticators.
	_ "github.com/RinKhimera/fantribe-messenger/server/auth/basic"
	_ "github.com/RinKhimera/fantribe-messenger/server/auth/token"

	// Database adapters.
	_ "github.com/RinKhimera/fantribe-messenger/server/db/mysql"
	_ "github.com/RinKhimera/fantribe-messenger/server/db/postgres"

	// Media handlers.
	_ "github.com/RinKhimera/fantribe-messenger/server/media/fs"
	_ "github.com/RinKhimera/fantribe-messenger/server/media/s3"

	// Push notification handlers.
	_ "github.com/RinKhimera/fantribe-messenger/server/push/fcm"
	_ "github.com/RinKhimera/fantribe-messenger/server/push/stdout"
)

const (
	// idleSessionTimeout defines duration of being idle before terminating a
	// session.
	idleSessionTimeout = time.Second * 55

	// defaultMaxMessageSize is the default maximum message size.
	defaultMaxMessageSize = 1 << 19 // 512K

	// numTaskPoolWorkers is the size of the background task pool.
	numTaskPoolWorkers = 16
)

// Build version number defined by the compiler:
//
//	-ldflags "-X main.buildstamp=value_to_assign_to_buildstamp"
//
// Reported to clients in response to {hi} message.
var buildstamp = "undef"

// Contents of the configuration file.
type configType struct {
	// HTTP(S) address:port to listen on.
	Listen string `json:"listen"`
	// Base URL path where the streaming and large file API calls are served,
	// default '/'.
	ApiPath string `json:"api_path"`
	// If true, do not attempt to negotiate websocket per message compression.
	WSCompressionDisabled bool `json:"ws_compression_disabled"`
	// URL path for exposing runtime stats, disabled if the path is blank or
	// "-".
	ExpvarPath string `json:"expvar"`
	// URL path for exposing Prometheus metrics, disabled if blank or "-".
	PromMetricsPath string `json:"prom_metrics"`
	// URL path for internal server status, disabled if blank or "-".
	PprofPath string `json:"pprof_url"`

	// Salt used in signing API keys.
	APIKeySalt []byte `json:"api_key_salt"`
	// Take IP address of the client from the HTTP header instead of the
	// actual TCP connection.
	UseXForwardedFor bool `json:"use_x_forwarded_for"`
	// Maximum message size allowed from the clients in bytes.
	MaxMessageSize int `json:"max_message_size"`
	// Maximum file upload size in bytes.
	MaxFileUploadSize int64 `json:"max_file_upload_size"`
	// Whether the subscriber side of a conversation may attach media to
	// messages. The creator side always may.
	AllowSubscriberMedia bool `json:"allow_subscriber_media"`

	// Configs for subsystems.
	Store json.RawMessage `json:"store_config"`
	Push  json.RawMessage `json:"push"`
	TLS   *tlsConfig      `json:"tls"`
	Auth  json.RawMessage `json:"auth_config"`
	Media *mediaConfig    `json:"media"`
	Queue json.RawMessage `json:"queue"`
}

type mediaConfig struct {
	// The name of the handler to use for file uploads.
	UseHandler string `json:"use_handler"`
	// Garbage collection periodicity in seconds.
	GcPeriod int `json:"gc_period"`
	// Number of entries to delete in one pass.
	GcBlockSize int `json:"gc_block_size"`
	// Configurations for various handlers.
	Handlers map[string]json.RawMessage `json:"handlers"`
}

var globals struct {
	// Topic-like conversation router.
	hub *Hub
	// Sessions store.
	sessionStore *SessionStore
	// Viewer-dependent permission evaluator.
	perm *permEval
	// Worker pool for tasks which must not block a conversation goroutine.
	taskPool *concurrency.Pool
	// Optional AMQP event publisher, nil when not configured.
	events *queue.Publisher
	// Salt used for signing API keys.
	apiKeySalt []byte
	// Add Strict-Transport-Security to headers, the value signifies age.
	// Empty string "" turns it off.
	tlsStrictMaxAge string
	// Maximum message size allowed from clients.
	maxMessageSize int
	// Maximum file upload size.
	maxFileUploadSize int64
	// Take IP address of the client from the HTTP header.
	useXForwardedFor bool
	// Channel for broadcasting stats updates.
	statsUpdate chan *varUpdate
	// Server is shutting down.
	shuttingDown bool
}

func main() {
	logFlags := flag.String("log_flags", "stdFlags",
		"Comma-separated list of log flags (as defined in https://golang.org/pkg/log/#pkg-constants without the L prefix)")
	configfile := flag.String("config", "messenger.conf", "Path to config file.")
	listenOn := flag.String("listen", "", "Override address and port to listen on for HTTP(S) clients.")
	apiPath := flag.String("api_path", "", "Override the base URL path where API is served.")
	expvarPath := flag.String("expvar", "", "Override the URL path where runtime stats are exposed. Use '-' to disable.")
	pprofFile := flag.String("pprof", "", "File name to save profiling info to. Disabled if not set.")
	flag.Parse()

	logs.Init(os.Stderr, *logFlags)

	curwd, err := os.Getwd()
	if err != nil {
		logs.Err.Fatal("Couldn't get current working directory: ", err)
	}

	logs.Info.Printf("Server v%s:%s; pid %d; %d process(es)",
		currentVersion, buildstamp, os.Getpid(), runtime.GOMAXPROCS(runtime.NumCPU()))

	*configfile = toAbsolutePath(curwd, *configfile)
	logs.Info.Printf("Using config from '%s'", *configfile)

	var config configType
	if file, err := os.Open(*configfile); err != nil {
		logs.Err.Fatal("Failed to read config file: ", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				logs.Err.Fatal("Failed to parse config file: ", err)
			}
		}
		file.Close()
	}

	if *listenOn != "" {
		config.Listen = *listenOn
	}

	// Set up HTTP server. Must use non-default mux because of expvar.
	mux := http.NewServeMux()

	// Exposing values for statistics and monitoring.
	evpath := *expvarPath
	if evpath == "" {
		evpath = config.ExpvarPath
	}
	statsInit(mux, evpath, config.PromMetricsPath)
	statsRegisterInt("Version")
	statsRegisterInt("LiveSessions")
	statsRegisterInt("TotalSessions")
	statsRegisterInt("TotalMessages")
	statsRegisterInt("CreatedAccounts")
	statsRegisterInt("IncomingMessagesTotal")
	statsRegisterInt("IncomingMessagesWebsockTotal")
	statsRegisterInt("OutgoingMessagesWebsockTotal")
	statsRegisterInt("IncomingMessagesLongpollTotal")
	statsRegisterInt("OutgoingMessagesLongpollTotal")
	statsRegisterInt("FileUploadsTotal")
	statsRegisterInt("FileDownloadsTotal")
	decVersion := base10Version(parseVersion(buildstamp))
	if decVersion <= 0 {
		decVersion = base10Version(parseVersion(currentVersion))
	}
	statsSet("Version", decVersion)

	// Initialize serving debug profiles (optional).
	servePprof(mux, config.PprofPath)

	if *pprofFile != "" {
		*pprofFile = toAbsolutePath(curwd, *pprofFile)

		cpuf, err := os.Create(*pprofFile + ".cpu")
		if err != nil {
			logs.Err.Fatal("Failed to create CPU pprof file: ", err)
		}
		defer cpuf.Close()

		memf, err := os.Create(*pprofFile + ".mem")
		if err != nil {
			logs.Err.Fatal("Failed to create Mem pprof file: ", err)
		}
		defer memf.Close()

		pprof.StartCPUProfile(cpuf)
		defer pprof.StopCPUProfile()
		defer pprof.WriteHeapProfile(memf)

		logs.Info.Printf("Profiling info saved to '%s.(cpu|mem)'", *pprofFile)
	}

	err = store.Store.Open(1, config.Store)
	logs.Info.Println("DB adapter", store.Store.GetAdapterName(), store.Store.GetAdapterVersion())
	if err != nil {
		logs.Err.Fatal("Failed to connect to DB: ", err)
	}
	defer func() {
		store.Store.Close()
		logs.Info.Println("Closed database connection(s)")
		logs.Info.Println("All done, good bye")
	}()
	statsRegisterDbStats()

	// API key signing secret.
	if len(config.APIKeySalt) != 32 {
		logs.Err.Fatal("Invalid 'api_key_salt': must be exactly 32 random bytes.",
			base64.StdEncoding.EncodeToString(config.APIKeySalt))
	}
	globals.apiKeySalt = config.APIKeySalt

	// Initialize authenticators.
	var authcfg map[string]json.RawMessage
	if len(config.Auth) > 0 {
		if err = json.Unmarshal(config.Auth, &authcfg); err != nil {
			logs.Err.Fatal("Failed to parse auth_config: ", err)
		}
	}
	if err = store.Store.InitAuthLogicalNames(authcfg["logical_names"]); err != nil {
		logs.Err.Fatal(err)
	}
	authNames := store.Store.GetAuthNames()
	for _, name := range authNames {
		if authhdl := store.Store.GetAuthHandler(name); authhdl == nil {
			logs.Err.Fatal("Unknown authenticator", name)
		} else if jsconf := authcfg[name]; len(jsconf) > 0 {
			if err := authhdl.Init(jsconf, name); err != nil {
				logs.Err.Fatal("Failed to init auth scheme", name+":", err)
			}
		}
	}

	// Media handler.
	if config.Media != nil {
		if config.Media.UseHandler == "" {
			config.Media = nil
		} else {
			globals.maxFileUploadSize = config.MaxFileUploadSize
			if config.Media.Handlers != nil {
				var conf string
				if params := config.Media.Handlers[config.Media.UseHandler]; params != nil {
					conf = string(params)
				}
				if err = store.Store.UseMediaHandler(config.Media.UseHandler, conf); err != nil {
					logs.Err.Fatalf("Failed to init media handler '%s': %s", config.Media.UseHandler, err)
				}
			}
			if config.Media.GcPeriod > 0 && config.Media.GcBlockSize > 0 {
				stopFilesGc := largeFileRunGarbageCollection(time.Second*time.Duration(config.Media.GcPeriod),
					config.Media.GcBlockSize)
				defer func() {
					stopFilesGc <- true
					logs.Info.Println("Stopped files garbage collector")
				}()
			}
		}
	}

	// Push notifications.
	if names, err := push.Init(config.Push); err != nil {
		logs.Err.Fatal("Failed to initialize push notifications: ", err)
	} else if len(names) > 0 {
		logs.Info.Println("Push handlers configured:", strings.Join(names, ", "))
	}
	defer func() {
		push.Stop()
		logs.Info.Println("Stopped push notifications")
	}()

	// Maximum message size.
	globals.maxMessageSize = config.MaxMessageSize
	if globals.maxMessageSize <= 0 {
		globals.maxMessageSize = defaultMaxMessageSize
	}
	globals.useXForwardedFor = config.UseXForwardedFor
	upgrader.EnableCompression = !config.WSCompressionDisabled

	// Keep inactive LP sessions slightly longer than the idle timeout.
	globals.sessionStore = NewSessionStore(idleSessionTimeout + 15*time.Second)
	// The hub, the runtime of all live conversations.
	globals.hub = newHub()
	// Viewer-dependent permission evaluator.
	globals.perm = newPermEval(config.AllowSubscriberMedia)
	// Pool for push delivery and other tasks kept off conversation goroutines.
	globals.taskPool = concurrency.NewPool(numTaskPoolWorkers)
	defer globals.taskPool.Stop()

	// Optional AMQP event feed for the rest of the platform.
	globals.events, err = queue.Init(config.Queue)
	if err != nil {
		logs.Err.Fatal("Failed to connect to event broker:", err)
	}
	if globals.events != nil {
		logs.Info.Println("AMQP event publisher connected")
		defer globals.events.Close()
	}

	// Base URL path for serving the streaming API.
	config.ApiPath = normalizePath(config.ApiPath, *apiPath)
	logs.Info.Printf("API served from root URL path '%s'", config.ApiPath)

	// Websocket clients.
	mux.HandleFunc(config.ApiPath+"v0/channels", serveWebSocket)
	// Long polling clients.
	mux.HandleFunc(config.ApiPath+"v0/channels/lp", serveLongPoll)
	// File upload.
	mux.Handle(config.ApiPath+"v0/file/u/", gh.CompressHandler(http.HandlerFunc(largeFileReceive)))
	// Serving large files.
	mux.Handle(config.ApiPath+"v0/file/s/", gh.CompressHandler(http.HandlerFunc(largeFileServe)))
	// Link previews for URLs pasted into messages.
	mux.HandleFunc(config.ApiPath+"v0/urlpreview", previewLink)
	// 404 for everything else.
	mux.HandleFunc("/", serve404)

	if err = listenAndServe(config.Listen, hstsHandler(mux), config.TLS, signalHandler()); err != nil {
		logs.Err.Fatal(err)
	}
}

// toAbsolutePath converts a relative filepath to absolute.
func toAbsolutePath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(base, path))
}

// normalizePath ensures the path is rooted and slash-terminated.
func normalizePath(configured, override string) string {
	p := configured
	if override != "" {
		p = override
	}
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// base10Version converts a protocol version to a decimal representation,
// e.g. 1.2 becomes 102.
func base10Version(hex int) int64 {
	major := hex >> 16 & 0xff
	minor := hex >> 8 & 0xff
	return int64(major*100 + minor)
}

// statsRegisterDbStats publishes the DB adapter stats callback, if any.
func statsRegisterDbStats() {
	if f := store.Store.DbStats(); f != nil {
		expvar.Publish("DbStats", expvar.Func(f))
	}
}

// largeFileRunGarbageCollection runs every 'period' and deletes up to 'block'
// unused files. Returns a channel which can be used to stop the process.
func largeFileRunGarbageCollection(period time.Duration, block int) chan<- bool {
	stop := make(chan bool)
	go func() {
		gcTicker := time.Tick(period)
		for {
			select {
			case <-gcTicker:
				if err := store.Files.DeleteUnused(time.Now().Add(-time.Hour), block); err != nil {
					logs.Warn.Println("media gc:", err)
				}
			case <-stop:
				return
			}
		}
	}()

	return stop
}
