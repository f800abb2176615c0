// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/danribes/pfm-solana-rust-sub010/models"
)

// ErrHubClosed is returned once Run has exited
var ErrHubClosed = errors.New("event hub closed")

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

type message struct {
	community string
	data      []byte
}

// Client is one subscriber to a community's event stream
type Client struct {
	community string
	send      chan []byte
}

// Messages yields encoded events. It is closed when the hub drops the client.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Hub fans committed events out to live subscribers, grouped by community
type Hub struct {
	clients    map[string]map[*Client]struct{}
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the subscriber map until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for community, set := range h.clients {
			for c := range set {
				close(c.send)
			}
			delete(h.clients, community)
		}
		h.count.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			set := h.clients[c.community]
			if set == nil {
				set = make(map[*Client]struct{})
				h.clients[c.community] = set
			}
			set[c] = struct{}{}
			h.count.Add(1)

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients[msg.community] {
				select {
				case c.send <- msg.data:
				default:
					slog.Warn("dropping slow event subscriber", "community", c.community)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	set := h.clients[c.community]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	h.count.Add(-1)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.community)
	}
}

// Subscribers reports how many clients are connected
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Subscribe registers a client for community's events
func (h *Hub) Subscribe(ctx context.Context, community string) (*Client, error) {
	c := &Client{community: community, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
		return c, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes c; safe after the hub dropped it or stopped
func (h *Hub) Unsubscribe(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish broadcasts ev to the subscribers of its community
func (h *Hub) Publish(ctx context.Context, ev models.Event) error {
	if ev.Community == "" {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	select {
	case h.broadcast <- message{community: ev.Community, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream pumps community's events into conn until the peer goes away or the hub stops
func (h *Hub) Stream(ctx context.Context, conn *websocket.Conn, community string) error {
	client, err := h.Subscribe(ctx, community)
	if err != nil {
		conn.Close(websocket.StatusTryAgainLater, "event stream unavailable")
		return err
	}
	defer h.Unsubscribe(client)

	// the stream is one-way; CloseRead handles pings and the peer's close frame
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case data, ok := <-client.Messages():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return nil
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return fmt.Errorf("write to event subscriber: %w", err)
			}
		}
	}
}
