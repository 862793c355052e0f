package websocket

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// FeedRoom holds every connected client.
const FeedRoom socketio.Room = "feed"

type ackInvoker func(err error, payload map[string]any)

var (
	watchedImages = make(map[string]int)
	watchersMutex sync.RWMutex
)

// GetWatchedImages returns the number of clients following each image.
func GetWatchedImages() map[string]int {
	watchersMutex.RLock()
	defer watchersMutex.RUnlock()

	images := make(map[string]int, len(watchedImages))
	for k, v := range watchedImages {
		images[k] = v
	}
	return images
}

func setWatchers(imageID string, n int) {
	watchersMutex.Lock()
	defer watchersMutex.Unlock()
	if n <= 0 {
		delete(watchedImages, imageID)
		return
	}
	watchedImages[imageID] = n
}

func imageRoom(imageID string) socketio.Room {
	return socketio.Room("image:" + imageID)
}

func imageIDFromRoom(room socketio.Room) (string, bool) {
	return strings.CutPrefix(string(room), "image:")
}

// corsOrigins turns configured origins into socket.io matchers. A "*" inside
// an origin matches any run of characters other than "/". Origins that do
// not look like scheme://host[:port] are logged and left out.
func corsOrigins(origins []string) any {
	matchers := make([]any, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return "*"
		}
		matcher, err := originMatcher(origin)
		if err != nil {
			logrus.WithError(err).WithField("origin", origin).Warn("Skipping socket.io CORS origin")
			continue
		}
		matchers = append(matchers, matcher)
	}
	return matchers
}

func originMatcher(origin string) (any, error) {
	u, err := url.Parse(strings.ReplaceAll(origin, "*", "0"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("origin %q is not scheme://host[:port]", origin)
	}
	if !strings.Contains(origin, "*") {
		return origin, nil
	}

	pattern := strings.ReplaceAll(regexp.QuoteMeta(origin), `\*`, `[^/]*`)
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, fmt.Errorf("origin %q: %w", origin, err)
	}
	return re, nil
}

func SetupSocketIO(allowedOrigins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigins(allowedOrigins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		socket.Join(FeedRoom)
		utils.Log().Printf("socket %v joined the feed\n", me)

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-image", func(datas ...any) {
			ack, imageID, err := parseImageArgs(datas)
			if err != nil {
				respondWithAck(socket, ack, "join-image-ack", errorPayload(err), err)
				return
			}

			room := imageRoom(imageID)
			socket.Join(room)
			utils.Log().Printf("socket %v is watching image %v\n", me, imageID)

			srv.In(room).FetchSockets()(func(watchers []*socketio.RemoteSocket, fetchErr error) {
				if fetchErr != nil {
					respondWithAck(socket, ack, "join-image-ack", errorPayload(fetchErr), fetchErr)
					return
				}
				setWatchers(imageID, len(watchers))
				respondWithAck(socket, ack, "join-image-ack", map[string]any{
					"status":   "ok",
					"imageId":  imageID,
					"watchers": len(watchers),
				}, nil)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("leave-image", func(datas ...any) {
			ack, imageID, err := parseImageArgs(datas)
			if err != nil {
				respondWithAck(socket, ack, "leave-image-ack", errorPayload(err), err)
				return
			}

			room := imageRoom(imageID)
			socket.Leave(room)
			srv.In(room).FetchSockets()(func(watchers []*socketio.RemoteSocket, _ error) {
				setWatchers(imageID, len(watchers))
				respondWithAck(socket, ack, "leave-image-ack", map[string]any{
					"status":  "ok",
					"imageId": imageID,
				}, nil)
			})
		})

		socket.On("disconnecting", func(datas ...any) {
			for _, currentRoom := range socket.Rooms().Keys() {
				imageID, ok := imageIDFromRoom(currentRoom)
				if !ok {
					continue
				}
				srv.In(currentRoom).FetchSockets()(func(watchers []*socketio.RemoteSocket, _ error) {
					remaining := 0
					for _, w := range watchers {
						if w.Id() != me {
							remaining++
						}
					}
					setWatchers(imageID, remaining)
				})
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// FeedNotifier pushes feed changes to connected clients.
type FeedNotifier struct {
	srv *socketio.Server
}

func NewFeedNotifier(srv *socketio.Server) *FeedNotifier {
	return &FeedNotifier{srv: srv}
}

// Publish tells every client the feed changed, and clients watching the
// image what happened to it.
func (n *FeedNotifier) Publish(event core.FeedEvent) {
	log := logrus.WithFields(logrus.Fields{
		"event":    event.Type,
		"image_id": event.ImageID,
	})

	if err := n.srv.To(FeedRoom).Emit("feed-changed", event); err != nil {
		log.WithError(err).Warn("Failed to notify feed")
	}
	if event.Type == core.EventImageCreated {
		return
	}
	if err := n.srv.To(imageRoom(event.ImageID)).Emit("image-changed", event); err != nil {
		log.WithError(err).Warn("Failed to notify image watchers")
	}
}

func parseImageArgs(datas []any) (ack ackInvoker, imageID string, err error) {
	ack, args := extractAck(datas)
	if len(args) == 0 {
		return ack, "", fmt.Errorf("image id is required")
	}
	imageID, ok := args[0].(string)
	if !ok || imageID == "" {
		return ack, "", fmt.Errorf("invalid image id")
	}
	return ack, imageID, nil
}

func errorPayload(err error) map[string]any {
	return map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	ack = wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

// wrapAck adapts whatever callback shape the client library hands us.
func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		value.Call(buildAckArgs(typ, err, payload))
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		var argValue any
		switch {
		case numIn == 1 && err != nil:
			argValue = err
		case numIn == 1:
			argValue = payload
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		}
		args[i] = coerceValue(argValue, typ.In(i))
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(targetType):
		return rv
	case rv.Type().ConvertibleTo(targetType):
		return rv.Convert(targetType)
	case targetType.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}
	return reflect.Zero(targetType)
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
		return
	}
	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}
