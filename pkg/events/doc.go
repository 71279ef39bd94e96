/*
Package events provides an in-memory broker for store change notifications.

Repositories publish entity.saved, entity.deleted and entity.conflict; the
storage engine publishes backup.created and backup.failed; the migration
manager publishes migration.applied. Every event is broadcast to every
subscriber:

	Publisher → event channel (buffer 100) → broadcast loop → subscriber channels (buffer 50 each)

Publish never blocks on a slow subscriber. When a subscriber's buffer is
full the event is dropped for that subscriber only, so consumers that must
not miss changes should re-read the store rather than rely on the feed.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	users := repository.New[types.User](engine, repository.WithEvents(broker))

	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Key)
		}
	}()

Components take the Publisher interface and treat a nil publisher as "no
events"; Emit wraps that check.
*/
package events
