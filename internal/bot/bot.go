// Package bot lets players run a campaign from IRC. Every channel (or private
// conversation) keeps its own thread so the story carries on between messages.
package bot

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"gopkg.in/irc.v4"

	"gamemaster/internal"
	"gamemaster/internal/ai"
	"gamemaster/internal/config"
	"gamemaster/internal/logger"
	"gamemaster/internal/security"
)

const (
	requestTimeout = 3 * time.Minute
	joinDelay      = 2 * time.Second
)

// Conversations is satisfied by *ai.Driver.
type Conversations interface {
	Ask(ctx context.Context, msg string) (ai.Reply, error)
	Continue(ctx context.Context, threadID, msg string) (ai.Reply, error)
}

// sender is the part of *irc.Client the bot writes through.
type sender interface {
	WriteMessage(m *irc.Message) error
	CurrentNick() string
}

type Bot struct {
	cfg        config.IRCConfig
	conv       Conversations
	limiter    *security.MessageTracker
	transcript *logger.Transcript

	mu      sync.Mutex
	threads map[string]string   // reply target -> thread id
	pending map[string][]func() // reply target -> queued turns, present while one is running

	wg        sync.WaitGroup
	joinDelay time.Duration
}

// New returns a bot answering through conv. transcript may be nil.
func New(cfg config.IRCConfig, conv Conversations, transcript *logger.Transcript) *Bot {
	return &Bot{
		cfg:        cfg,
		conv:       conv,
		limiter:    security.NewMessageTracker(30*time.Second, 5),
		transcript: transcript,
		threads:    make(map[string]string),
		pending:    make(map[string][]func()),
		joinDelay:  joinDelay,
	}
}

// Run keeps the bot connected until ctx is cancelled, reconnecting after
// every disconnect.
func (b *Bot) Run(ctx context.Context) error {
	reconnectDelay := time.Duration(internal.DEFAULT_RECONNECT_DELAY) * time.Second
	connectionTimeout := time.Duration(internal.DEFAULT_CONNECT_TIMEOUT) * time.Second

	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		logger.Infof("Attempting to connect to IRC server at %s...", b.cfg.Server)

		connectCtx, connectCancel := context.WithTimeout(ctx, connectionTimeout)
		dialer := net.Dialer{}
		conn, err := dialer.DialContext(connectCtx, "tcp", b.cfg.Server)
		connectCancel()

		if err != nil {
			logger.Errorf("Failed to connect: %v. Retrying in %s...", err, reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return nil
			}
			continue
		}

		client := irc.NewClient(conn, irc.ClientConfig{
			Nick: b.cfg.Nick,
			User: b.cfg.User,
			Name: b.cfg.RealName,
			Handler: irc.HandlerFunc(func(c *irc.Client, m *irc.Message) {
				b.handle(ctx, c, m)
			}),
		})

		runErrCh := make(chan error, 1)
		go func() {
			runErrCh <- client.Run()
		}()

		select {
		case <-ctx.Done():
			logger.Infof("Shutdown requested, closing IRC connection.")
			if err := conn.Close(); err != nil {
				logger.Errorf("Error closing connection: %v", err)
			}
			if err := <-runErrCh; err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Errorf("IRC client terminated with error: %v", err)
			}
			return nil
		case err := <-runErrCh:
			if err != nil {
				logger.Errorf("IRC client disconnected: %v", err)
			}
		}

		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Errorf("Error closing connection: %v", err)
		}

		logger.Warnf("Reconnecting in %s...", reconnectDelay)
		if !sleep(ctx, reconnectDelay) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (b *Bot) handle(ctx context.Context, s sender, m *irc.Message) {
	switch m.Command {
	case internal.RPL_WELCOME:
		logger.Successf(">> Welcome message received: %s", m.Trailing())
		if b.cfg.Password != "" {
			b.write(s, "NickServ", "IDENTIFY "+b.cfg.Password)
		}

	case internal.RPL_ENDOFMOTD, internal.ERR_NOMOTD:
		// give NickServ a moment before joining
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if !sleep(ctx, b.joinDelay) {
				return
			}
			for _, channel := range b.cfg.Channels {
				if err := s.WriteMessage(&irc.Message{Command: internal.CMD_JOIN, Params: []string{channel}}); err != nil {
					logger.Errorf(">> Error joining channel %s: %v", channel, err)
				} else {
					logger.Successf(">> Joining channel: %s", channel)
				}
			}
		}()

	case internal.CMD_PRIVMSG:
		b.handlePrivmsg(ctx, s, m)
	}
}

func (b *Bot) handlePrivmsg(ctx context.Context, s sender, m *irc.Message) {
	if m.Prefix == nil || len(m.Params) == 0 {
		return
	}

	nick := m.Prefix.Name
	target := m.Params[0]
	private := strings.EqualFold(target, s.CurrentNick())
	if private {
		target = nick
	}

	prompt, ok := b.prompt(s.CurrentNick(), m.Trailing(), private)
	if !ok {
		return
	}

	if !b.limiter.Allow(m.Prefix.String()) {
		logger.Warnf("Rate limit exceeded for %s in %s", nick, target)
		if err := s.WriteMessage(&irc.Message{
			Command: internal.CMD_NOTICE,
			Params:  []string{nick, "Please slow down, the Game Master is still thinking."},
		}); err != nil {
			logger.Errorf("Failed to send notice to %s: %v", nick, err)
		}
		return
	}

	if strings.EqualFold(prompt, "new") {
		b.enqueue(target, func() {
			b.forget(target)
			b.write(s, target, "A new adventure awaits. Tell me about your character and the world.")
		})
		return
	}

	logger.Infof(">> %s in %s: %s", nick, target, prompt)

	b.enqueue(target, func() {
		if ctx.Err() != nil {
			return
		}
		b.transcript.Line(target, nick, prompt)

		rctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		reply, err := b.converse(rctx, target, nick+": "+prompt)
		if err != nil {
			logger.Errorf("Game Master failed for %s: %v", target, err)
			b.write(s, target, nick+": the Game Master could not answer right now.")
			return
		}
		b.transcript.Line(target, s.CurrentNick(), reply)
		for _, line := range FormatReply(reply) {
			b.write(s, target, line)
		}
	})
}

// enqueue runs turn in the background once every earlier turn for target is
// done. A campaign thread takes one message at a time, so turns for the same
// target never overlap and keep their arrival order.
func (b *Bot) enqueue(target string, turn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue, running := b.pending[target]
	b.pending[target] = append(queue, turn)
	if running {
		return
	}

	b.wg.Add(1)
	go b.drain(target)
}

func (b *Bot) drain(target string) {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		queue := b.pending[target]
		if len(queue) == 0 {
			delete(b.pending, target)
			b.mu.Unlock()
			return
		}
		turn := queue[0]
		b.pending[target] = queue[1:]
		b.mu.Unlock()

		turn()
	}
}

// prompt extracts the player's text when the message is addressed to the bot:
// the trigger prefix, the bot's nick, or any private message.
func (b *Bot) prompt(nick, text string, private bool) (string, bool) {
	text = strings.TrimSpace(text)

	if trigger := b.cfg.Trigger; trigger != "" {
		if rest, ok := strings.CutPrefix(text, trigger); ok && (rest == "" || rest[0] == ' ') {
			rest = strings.TrimSpace(rest)
			return rest, rest != ""
		}
	}

	if nick != "" && len(text) >= len(nick) && strings.EqualFold(text[:len(nick)], nick) {
		rest := text[len(nick):]
		if rest == "" || strings.ContainsRune(" ,:;", rune(rest[0])) {
			rest = strings.TrimSpace(strings.TrimLeft(rest, ",:;"))
			return rest, rest != ""
		}
	}

	if private {
		return text, text != ""
	}
	return "", false
}

// converse continues the target's campaign, starting one when there is none.
// Callers run it inside a turn for target.
func (b *Bot) converse(ctx context.Context, target, msg string) (string, error) {
	b.mu.Lock()
	threadID := b.threads[target]
	b.mu.Unlock()

	var (
		reply ai.Reply
		err   error
	)
	if threadID == "" {
		reply, err = b.conv.Ask(ctx, msg)
	} else {
		reply, err = b.conv.Continue(ctx, threadID, msg)
	}
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.threads[target] = reply.ThreadID
	b.mu.Unlock()

	return reply.Message, nil
}

func (b *Bot) forget(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.threads, target)
}

func (b *Bot) write(s sender, target, text string) {
	if err := s.WriteMessage(&irc.Message{
		Command: internal.CMD_PRIVMSG,
		Params:  []string{target, text},
	}); err != nil {
		logger.Errorf("Failed to send message to %s: %v", target, err)
	}
}

// Wait blocks until in-flight replies are sent.
func (b *Bot) Wait() {
	b.wg.Wait()
}
