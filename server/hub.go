/******************************************************************************
 *
 *  Description :
 *
 *    Create/tear down conversation goroutines; route messages between
 *    sessions and conversations.
 *
 *****************************************************************************/

package main

import (
	"sync"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// sessionJoin is a request to attach a session to a conversation.
type sessionJoin struct {
	// Packet, containing conversation name or peer.
	pkt *ClientComMessage
	// Session to attach.
	sess *Session
}

// sessionLeave is a request to detach a session from a conversation.
type sessionLeave struct {
	// Packet, having the conversation name. Nil when the session is dropped
	// without an explicit {leave}.
	pkt *ClientComMessage
	// Session to detach.
	sess *Session
}

// threadUnreg is a request from a conversation to remove it from the hub,
// usually because it has been idle.
type threadUnreg struct {
	conv string
	// Channel to report completion, may be nil.
	done chan<- bool
}

// Hub is the core structure which holds all live conversations.
type Hub struct {
	// Live conversations, indexed by name. Presence in the map does not mean
	// the conversation has finished loading: early joins are buffered by the
	// thread itself.
	threads *sync.Map

	// Channel for routing client-side requests which attach sessions, buffered.
	join chan *sessionJoin

	// Channel for routing server-generated messages to a live conversation,
	// buffered.
	route chan *ServerComMessage

	// Remove an idle conversation from the hub, buffered.
	unreg chan *threadUnreg

	// Request to shutdown the hub: unbuffered.
	shutdown chan chan<- bool
}

func (h *Hub) threadGet(name string) *Thread {
	if t, ok := h.threads.Load(name); ok {
		return t.(*Thread)
	}
	return nil
}

func (h *Hub) threadPut(name string, t *Thread) {
	h.threads.Store(name, t)
}

func (h *Hub) threadDel(name string) {
	h.threads.Delete(name)
}

// isTyping reports whether the given user is currently typing in the named
// conversation. Best effort: false when the conversation is not live.
func (h *Hub) isTyping(conv string, uid types.Uid) bool {
	if t := h.threadGet(conv); t != nil {
		return t.typing.isTyping(uid)
	}
	return false
}

func newHub() *Hub {
	h := &Hub{
		threads:  &sync.Map{},
		join:     make(chan *sessionJoin, 256),
		route:    make(chan *ServerComMessage, 4096),
		unreg:    make(chan *threadUnreg, 32),
		shutdown: make(chan chan<- bool),
	}

	statsRegisterInt("LiveThreads")
	statsRegisterInt("TotalThreads")

	go h.run()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case join := <-h.join:
			// Request to attach a session to a conversation.
			t := h.threadGet(join.pkt.RcptTo)
			if t == nil {
				// Conversation is not online yet: create it and let it load
				// its state in its own goroutine. Joins which arrive while
				// loading queue up in t.reg.
				t = newThread(join.pkt.RcptTo, h)
				h.threadPut(join.pkt.RcptTo, t)
				statsInc("LiveThreads", 1)
				statsInc("TotalThreads", 1)
				go t.run()
			}
			select {
			case t.reg <- join:
			default:
				logs.Err.Println("hub: join queue full, dropping; conv=", join.pkt.RcptTo, join.sess.sid)
				join.sess.queueOut(ErrUnknown(join.pkt.Id, join.pkt.RcptTo, join.pkt.Timestamp))
			}

		case msg := <-h.route:
			// Server-generated message addressed to a conversation. Dropped
			// if the conversation is not live: the state is already
			// persisted and will be read on next load.
			if t := h.threadGet(msg.RcptTo); t != nil {
				select {
				case t.supply <- msg:
				default:
					logs.Err.Println("hub: supply queue full; conv=", msg.RcptTo)
				}
			}

		case unreg := <-h.unreg:
			if t := h.threadGet(unreg.conv); t != nil {
				h.threadDel(unreg.conv)
				t.exit <- &threadExit{done: unreg.done}
				statsInc("LiveThreads", -1)
			} else if unreg.done != nil {
				unreg.done <- true
			}

		case done := <-h.shutdown:
			// Terminate all live conversations.
			var wg sync.WaitGroup
			h.threads.Range(func(_, t any) bool {
				wg.Add(1)
				go func(t *Thread) {
					ack := make(chan bool, 1)
					t.exit <- &threadExit{done: ack}
					<-ack
					wg.Done()
				}(t.(*Thread))
				return true
			})
			wg.Wait()

			logs.Info.Println("hub: shut down")
			done <- true
			return
		}
	}
}
