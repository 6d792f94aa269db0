package kalshi

import (
	"github.com/sirupsen/logrus"

	promclient "github.com/spooky-finn/go-kalshi-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-kalshi-bridge/logger"
)

type HandlerFunc func(*Envelope)

// Router maps an envelope's type tag to its handler. Registration happens
// once at startup; an envelope with an unregistered type is dropped so that
// newer server-side message kinds never crash the client.
type Router struct {
	handlers map[string]HandlerFunc
	log      *logrus.Entry
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		log:      logger.Component("router"),
	}
}

// Handle registers the handler for one message type. Exactly one handler
// per type; a duplicate registration is a programming error.
func (r *Router) Handle(msgType string, h HandlerFunc) {
	if _, ok := r.handlers[msgType]; ok {
		panic("kalshi: duplicate handler registration for type " + msgType)
	}
	r.handlers[msgType] = h
}

func (r *Router) Route(env *Envelope) {
	h, ok := r.handlers[env.Type]
	if !ok {
		promclient.UnknownMessagesTotal.Inc()
		r.log.Debugf("dropping message with unknown type %q", env.Type)
		return
	}
	h(env)
}
