package worker

import (
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/service"
)

// Sink consumes domain events outside the request path, such as the
// Kafka forwarder or the CRM sync.
type Sink interface {
	Register(d events.Dispatcher)
}

// StartNotificationWorker registers notification handlers and every
// configured sink on the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, sinks ...Sink) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if dispatcher == nil {
		return
	}
	for _, sink := range sinks {
		if sink != nil {
			sink.Register(dispatcher)
		}
	}
}
