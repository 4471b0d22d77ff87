/******************************************************************************
 *
 *  Description :
 *
 *    Optional HTTP access to runtime profiles. Mounted at the path given by
 *    pprof_url in the config; the last path element names the profile, see
 *    runtime/pprof for the available ones.
 *
 *****************************************************************************/

package main

import (
	"net/http"
	"path"
	"runtime/pprof"
	"strings"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
)

var pprofHttpRoot string

// servePprof mounts the profile handler. Disabled when the path is empty
// or "-".
func servePprof(mux *http.ServeMux, serveAt string) {
	if serveAt == "" || serveAt == "-" {
		return
	}

	pprofHttpRoot = path.Clean("/"+serveAt) + "/"
	mux.HandleFunc(pprofHttpRoot, profileHandler)

	logs.Info.Printf("pprof: profiling info exposed at '%s'", pprofHttpRoot)
}

func profileHandler(wrt http.ResponseWriter, req *http.Request) {
	wrt.Header().Set("X-Content-Type-Options", "nosniff")

	name := strings.TrimPrefix(req.URL.Path, pprofHttpRoot)
	profile := pprof.Lookup(name)
	if profile == nil {
		http.Error(wrt, "no such profile: "+name, http.StatusNotFound)
		return
	}

	wrt.Header().Set("Content-Type", "text/plain; charset=utf-8")
	// debug=2 renders goroutine dumps as readable stacks.
	profile.WriteTo(wrt, 2)
}
