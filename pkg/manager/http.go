// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seedforge/seedforge/pkg/csource"
	"github.com/seedforge/seedforge/pkg/log"
	"github.com/seedforge/seedforge/pkg/mgrconfig"
	"github.com/seedforge/seedforge/pkg/stat"
)

type HTTPServer struct {
	// To be set before calling Serve.
	Cfg       *mgrconfig.Config
	Manager   *Manager
	StartTime time.Time
}

// Handler returns the handler for all pages, Serve uses it.
func (serv *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		mux.Handle(pattern, handlers.CompressHandler(http.HandlerFunc(handler)))
	}
	handle("/", serv.httpMain)
	handle("/config", serv.httpConfig)
	handle("/corpus", serv.httpCorpus)
	handle("/seed", serv.httpSeed)
	handle("/metrics", promhttp.HandlerFor(stat.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	// Browsers like to request this, without special handler this goes to / handler.
	handle("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})
	return handlers.CombinedLoggingHandler(log.VerboseWriter(3), mux)
}

func (serv *HTTPServer) Serve(ctx context.Context) error {
	if serv.Cfg.HTTP == "" {
		return fmt.Errorf("starting a disabled HTTP server")
	}
	log.Logf(0, "serving http on http://%v", serv.Cfg.HTTP)
	server := &http.Server{Addr: serv.Cfg.HTTP, Handler: serv.Handler()}
	go func() {
		// The http server package unfortunately does not natively take a context.Context.
		// Let's emulate it via server.Shutdown()
		<-ctx.Done()
		server.Close()
	}()
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (serv *HTTPServer) httpMain(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := &UISummaryData{
		Name:   serv.Cfg.Name,
		Uptime: time.Since(serv.StartTime).Truncate(time.Second),
		Log:    log.CachedLogOutput(),
	}
	for _, st := range stat.Collect(stat.All) {
		data.Stats = append(data.Stats, UIStat{
			Name:  st.Name,
			Value: st.Value,
			Hint:  st.Desc,
		})
	}
	for _, res := range serv.Manager.Results() {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		data.Libraries = append(data.Libraries, UILibrary{
			Name:     res.Library,
			Seeds:    len(res.Artifacts),
			Attempts: res.Attempts,
			Rounds:   res.Rounds,
			Stop:     res.Stop,
			Error:    errText,
		})
	}
	executeTemplate(w, mainTemplate, data)
}

func (serv *HTTPServer) httpConfig(w http.ResponseWriter, r *http.Request) {
	text, err := json.MarshalIndent(serv.Cfg, "", "\t")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode json: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ctTextPlain)
	w.Write(text)
}

func (serv *HTTPServer) httpCorpus(w http.ResponseWriter, r *http.Request) {
	lib := r.FormValue("library")
	corpus := serv.Manager.Corpus(lib)
	if corpus == nil {
		http.Error(w, fmt.Sprintf("no corpus for library %q (have %v)", lib, serv.Manager.Libraries()),
			http.StatusNotFound)
		return
	}
	data := &UICorpusPage{
		Name:    serv.Cfg.Name,
		Library: lib,
	}
	for _, item := range corpus.Items() {
		data.Inputs = append(data.Inputs, UIInput{
			ID:       item.ID,
			Short:    item.Seq.String(),
			Branches: item.Report.NumBranches(),
			Score:    item.Report.Score(),
		})
	}
	executeTemplate(w, corpusTemplate, data)
}

func (serv *HTTPServer) httpSeed(w http.ResponseWriter, r *http.Request) {
	lib := r.FormValue("library")
	corpus := serv.Manager.Corpus(lib)
	id, err := strconv.Atoi(r.FormValue("id"))
	if corpus == nil || err != nil {
		http.Error(w, "bad library or seed id", http.StatusBadRequest)
		return
	}
	for _, item := range corpus.Items() {
		if item.ID != id {
			continue
		}
		data, err := csource.Emit(item.Seq, item.Report, item.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ctTextPlain)
		w.Write(data)
		return
	}
	http.Error(w, fmt.Sprintf("no seed %v in %v", id, lib), http.StatusNotFound)
}

const ctTextPlain = "text/plain; charset=utf-8"

func executeTemplate(w http.ResponseWriter, templ *template.Template, data any) {
	buf := new(bytes.Buffer)
	if err := templ.Execute(buf, data); err != nil {
		log.Logf(0, "failed to execute template: %v", err)
		http.Error(w, fmt.Sprintf("failed to execute template: %v", err), http.StatusInternalServerError)
		return
	}
	w.Write(buf.Bytes())
}

type UISummaryData struct {
	Name      string
	Uptime    time.Duration
	Stats     []UIStat
	Libraries []UILibrary
	Log       string
}

type UIStat struct {
	Name  string
	Value string
	Hint  string
}

type UILibrary struct {
	Name     string
	Seeds    int
	Attempts int
	Rounds   int
	Stop     string
	Error    string
}

type UICorpusPage struct {
	Name    string
	Library string
	Inputs  []UIInput
}

type UIInput struct {
	ID       int
	Short    string
	Branches int
	Score    float64
}

var templTypes = []templType{
	{mainTemplate, UISummaryData{}},
	{corpusTemplate, UICorpusPage{}},
}

type templType struct {
	templ *template.Template
	data  any
}

var mainTemplate = template.Must(template.New("").Parse(`
<!doctype html>
<html>
<head>
	<title>{{.Name}} seedforge</title>
</head>
<body>
<b>{{.Name}}</b>, up {{.Uptime}}
<table>
	<caption>Libraries</caption>
	<tr><th>Library</th><th>Seeds</th><th>Attempts</th><th>Rounds</th><th>Status</th></tr>
	{{range $lib := $.Libraries}}
	<tr>
		<td><a href="/corpus?library={{$lib.Name}}">{{$lib.Name}}</a></td>
		<td>{{$lib.Seeds}}</td>
		<td>{{$lib.Attempts}}</td>
		<td>{{$lib.Rounds}}</td>
		<td>{{if $lib.Error}}{{$lib.Error}}{{else}}{{$lib.Stop}}{{end}}</td>
	</tr>
	{{end}}
</table>
<table>
	<caption>Stats</caption>
	{{range $s := $.Stats}}
	<tr><td title="{{$s.Hint}}">{{$s.Name}}</td><td>{{$s.Value}}</td></tr>
	{{end}}
</table>
<pre>{{.Log}}</pre>
</body>
</html>
`))

var corpusTemplate = template.Must(template.New("").Parse(`
<!doctype html>
<html>
<head>
	<title>{{.Name}} {{.Library}} corpus</title>
</head>
<body>
<table>
	<caption>{{.Library}} corpus ({{len .Inputs}})</caption>
	<tr><th>ID</th><th>Branches</th><th>Score</th><th>Sequence</th></tr>
	{{range $inp := $.Inputs}}
	<tr>
		<td><a href="/seed?library={{$.Library}}&id={{$inp.ID}}">{{$inp.ID}}</a></td>
		<td>{{$inp.Branches}}</td>
		<td>{{printf "%.2f" $inp.Score}}</td>
		<td>{{$inp.Short}}</td>
	</tr>
	{{end}}
</table>
</body>
</html>
`))
