package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sanity-io/litter"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/framepad/framepad/annotate"
	"github.com/framepad/framepad/event"
	"github.com/framepad/framepad/export"
	"github.com/framepad/framepad/replica"
	"github.com/framepad/framepad/session"
)

const FramepadCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Framepad control.

Host or join a live annotation session, or export annotations.

Usage:
    framepadctl host [--listen=<listen>] [--annotations=<annotations>]
    framepadctl join --url=<url> [--annotations=<annotations>]
    framepadctl export-pdf <annotations> <pdf> [--hold=<hold>]

Options:
    -h --help                    Show this screen.
    --version                    Show version.
    --listen=<listen>            Listen address [default: :7235].
    --url=<url>                  Host websocket url, e.g. ws://host:7235/session.
    --annotations=<annotations>  Seed annotations from a JSON export.
    --hold=<hold>                Session hold duration in frames [default: 1].

The user profile is read from ~/.framepad.yaml (keys: name, color, fps).`

	flag.CommandLine.Parse([]string{"-logtostderr=true"})

	opts, err := docopt.ParseArgs(usage, os.Args[1:], FramepadCtlVersion)
	if err != nil {
		panic(err)
	}

	if host_, _ := opts.Bool("host"); host_ {
		host(opts)
	} else if join_, _ := opts.Bool("join"); join_ {
		join(opts)
	} else if exportPdf_, _ := opts.Bool("export-pdf"); exportPdf_ {
		exportPdf(opts)
	}
}

func loadProfile() session.User {
	viper.SetConfigName(".framepad")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.AddConfigPath(".")
	viper.SetDefault("name", "anonymous")
	viper.SetDefault("color", "#ff9500")
	viper.SetDefault("fps", 24.0)
	if err := viper.ReadInConfig(); err != nil {
		glog.V(1).Infof("[ctl]no profile = %s\n", err)
	}

	return session.User{
		Id:    uuid.NewString(),
		Name:  viper.GetString("name"),
		Color: viper.GetString("color"),
	}
}

func newClient(opts docopt.Opts) (*annotate.Store, *replica.Doc, *session.Session, *session.Bridge) {
	user := loadProfile()

	initialState := annotate.DefaultAppState()
	initialState.Fps = viper.GetFloat64("fps")
	if annotationsPath, err := opts.String("--annotations"); err == nil && annotationsPath != "" {
		annotations, err := export.ReadFile(annotationsPath)
		if err != nil {
			Err.Fatalf("cannot read annotations: %s", err)
		}
		initialState.Annotations = annotations
	}

	store := annotate.NewStore(initialState, annotate.DefaultStoreSettings())
	doc := replica.NewDoc(user.Id)
	sess := session.NewSession(doc, user)
	bridge := session.NewBridge(store, doc)

	sess.OnUserAnnounced(func(user session.User) {
		Out.Printf("* %s joined (%s)", user.Name, user.Id)
	})
	sess.OnStateChanged(func(state session.State) {
		Out.Printf("* session %s", state)
	})

	return store, doc, sess, bridge
}

func host(opts docopt.Opts) {
	listen, _ := opts.String("--listen")
	store, _, sess, bridge := newClient(opts)
	defer bridge.Close()
	defer sess.Close()

	if err := sess.Host(); err != nil {
		Err.Fatalf("cannot host: %s", err)
	}
	bridge.PublishAll()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	http.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Infof("[ctl]upgrade error = %s\n", err)
			return
		}
		channel := session.NewWsChannelWithDefaults(context.Background(), ws)
		sess.AddChannel(channel)
	})
	go func() {
		Out.Printf("hosting on %s (path /session)", listen)
		if err := http.ListenAndServe(listen, nil); err != nil {
			Err.Fatalf("listen error: %s", err)
		}
	}()

	interact(store, sess)
}

func join(opts docopt.Opts) {
	url, _ := opts.String("--url")
	store, _, sess, bridge := newClient(opts)
	defer bridge.Close()
	defer sess.Close()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		Err.Fatalf("cannot dial %s: %s", url, err)
	}
	channel := session.NewWsChannelWithDefaults(context.Background(), ws)
	if err := sess.Connect(channel); err != nil {
		Err.Fatalf("cannot connect: %s", err)
	}
	bridge.PublishAll()

	interact(store, sess)
}

func exportPdf(opts docopt.Opts) {
	annotationsPath, _ := opts.String("<annotations>")
	pdfPath, _ := opts.String("<pdf>")
	hold, err := opts.Int("--hold")
	if err != nil {
		hold = 1
	}

	annotations, err := export.ReadFile(annotationsPath)
	if err != nil {
		Err.Fatalf("cannot read annotations: %s", err)
	}
	if err := export.WritePDF(pdfPath, annotations, hold); err != nil {
		Err.Fatalf("cannot write pdf: %s", err)
	}
	Out.Printf("wrote %s (%d annotations)", pdfPath, len(annotations))
}

// termPlayer drives playback state in the store. Events fire synchronously
// on programmatic calls, which is what the playback echo window relies on.
type termPlayer struct {
	store *annotate.Store
	sync  *session.PlaybackSync
}

func (self *termPlayer) Play() {
	isPlaying := true
	self.store.SetState(annotate.StatePatch{IsPlaying: &isPlaying})
	if self.sync != nil {
		self.sync.PlayerPlayed()
	}
}

func (self *termPlayer) Pause() {
	isPlaying := false
	self.store.SetState(annotate.StatePatch{IsPlaying: &isPlaying})
	if self.sync != nil {
		self.sync.PlayerPaused(self.store.State().CurrentFrame)
	}
}

func (self *termPlayer) SeekToFrame(frame int) {
	if frame < 0 {
		frame = 0
	}
	self.store.SetState(annotate.StatePatch{CurrentFrame: &frame})
	if self.sync != nil {
		self.sync.PlayerSeeked(frame)
	}
}

func interact(store *annotate.Store, sess *session.Session) {
	player := &termPlayer{store: store}
	player.sync = session.NewPlaybackSyncWithDefaults(sess, player)
	defer player.sync.Close()

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		Out.Printf("stdin is not a terminal, running headless (ctrl-c to quit)")
		select {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		Err.Fatalf("raw mode error: %s", err)
	}
	defer term.Restore(fd, oldState)

	Out.Printf("keys: space=play/pause  ,/.=seek  n=annotate  u=undo  r=redo  d=dump  q=quit\r")

	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		state := store.State()
		switch buf[0] {
		case 'q', 3:
			return
		case ' ':
			if state.IsPlaying {
				player.Pause()
			} else {
				player.Play()
			}
		case ',':
			player.SeekToFrame(state.CurrentFrame - 1)
		case '.':
			player.SeekToFrame(state.CurrentFrame + 1)
		case 'n':
			annotation := &annotate.Annotation{
				Id:       annotate.NewAnnotationId(),
				Frame:    state.CurrentFrame,
				Duration: state.DefaultDuration,
				Shape:    annotate.ShapeFreehand,
				Points: []annotate.Point{
					{X: 0.25, Y: 0.25},
					{X: 0.75, Y: 0.75},
				},
				Style: annotate.Style{
					Color:       state.ActiveColor,
					StrokeWidth: state.ActiveStrokeWidth,
				},
			}
			store.AddAnnotation(annotation, event.OriginLocal)
			store.CaptureSnapshot()
			Out.Printf("+ %s on frame %d\r", annotation.Id, annotation.Frame)
		case 'u':
			if store.Undo() {
				Out.Printf("undo\r")
			}
		case 'r':
			if store.Redo() {
				Out.Printf("redo\r")
			}
		case 'd':
			dump := litter.Sdump(struct {
				Frame       int
				IsPlaying   bool
				Annotations int
				Users       []session.User
				State       session.State
			}{
				Frame:       state.CurrentFrame,
				IsPlaying:   state.IsPlaying,
				Annotations: len(state.Annotations),
				Users:       sess.Users(),
				State:       sess.State(),
			})
			fmt.Print(dump + "\r\n")
		}
	}
}
