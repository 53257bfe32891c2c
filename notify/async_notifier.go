package notify

import (
	"sync"

	"github.com/flowops/cadenza/util"
)

type delivery struct {
	recipientId string
	title       string
	message     string
	channels    []string
}

// AsyncNotifier takes deliveries off the caller's path and hands them to the
// wrapped notifier on a worker goroutine. The channel is buffered; a full
// buffer blocks the caller rather than dropping the delivery.
type AsyncNotifier struct {
	delegate Notifier
	worker   *util.Worker
}

func NewAsyncNotifier(delegate Notifier, wg *sync.WaitGroup, capacity int) *AsyncNotifier {
	n := &AsyncNotifier{delegate: delegate}
	n.worker = util.NewWorker("notification-dispatcher", wg, n.deliver, capacity)
	n.worker.Start()
	return n
}

func (n *AsyncNotifier) Send(recipientId string, title string, message string, channels []string) {
	n.worker.Sender() <- delivery{recipientId: recipientId, title: title, message: message, channels: channels}
}

func (n *AsyncNotifier) deliver(t util.Task) error {
	d := t.(delivery)
	n.delegate.Send(d.recipientId, d.title, d.message, d.channels)
	return nil
}

func (n *AsyncNotifier) Stop() {
	n.worker.Stop()
}
