package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain"
	"reminder-bot/internal/domain/model"
	"reminder-bot/internal/domain/ports/adapter"
	"reminder-bot/internal/domain/ports/repository"
	"reminder-bot/internal/infra/logging"
	"reminder-bot/internal/infra/metrics"
	"reminder-bot/internal/usecase"
)

type command int

const (
	cmdUnknown command = iota
	cmdHelp
	cmdOn
	cmdOff
	cmdTime
	cmdSlot
	cmdBack
	cmdStatus
	cmdCat
)

func (c command) String() string {
	switch c {
	case cmdHelp:
		return "help"
	case cmdOn:
		return "on"
	case cmdOff:
		return "off"
	case cmdTime:
		return "time"
	case cmdSlot:
		return "slot"
	case cmdBack:
		return "back"
	case cmdStatus:
		return "status"
	case cmdCat:
		return "cat"
	}
	return "unknown"
}

type DispatcherConfig struct {
	Location      *time.Location // fixed server zone slots are stored in
	UserOffset    time.Duration  // user display time = server time + offset
	DefaultActive bool
	SendTimeout   time.Duration
	Now           func() time.Time
}

// Dispatcher maps one inbound message to a settings change, a scheduler call and a
// reply. Settings are always persisted before the scheduler is touched.
type Dispatcher struct {
	store    repository.SettingsRepository
	sched    ReminderScheduler
	channel  adapter.NotificationChannel
	tr       Translator
	oneOff   OneOffDeliverer
	pool     TaskSubmitter
	limiter  RateLimiter
	cfg      DispatcherConfig
	log      *zerolog.Logger
	commands map[string]command
	slots    map[string]model.Slot
	mainMenu adapter.Menu
	timeMenu adapter.Menu
}

func NewDispatcher(
	store repository.SettingsRepository,
	sched ReminderScheduler,
	channel adapter.NotificationChannel,
	tr Translator,
	oneOff OneOffDeliverer,
	pool TaskSubmitter,
	limiter RateLimiter,
	cfg DispatcherConfig,
	logger *zerolog.Logger,
) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := logger.With().Str("component", "Dispatcher").Logger()
	d := &Dispatcher{
		store:   store,
		sched:   sched,
		channel: channel,
		tr:      tr,
		oneOff:  oneOff,
		pool:    pool,
		limiter: limiter,
		cfg:     cfg,
		log:     &l,
	}
	d.buildMenus()
	return d
}

func (d *Dispatcher) buildMenus() {
	d.commands = map[string]command{
		"/start":             cmdHelp,
		"/help":              cmdHelp,
		"/on":                cmdOn,
		"/off":               cmdOff,
		"/time":              cmdTime,
		"/status":            cmdStatus,
		"/cat":               cmdCat,
		"/back":              cmdBack,
		d.tr.T("btn_help"):   cmdHelp,
		d.tr.T("btn_on"):     cmdOn,
		d.tr.T("btn_off"):    cmdOff,
		d.tr.T("btn_time"):   cmdTime,
		d.tr.T("btn_status"): cmdStatus,
		d.tr.T("btn_cat"):    cmdCat,
		d.tr.T("btn_back"):   cmdBack,
	}

	d.slots = make(map[string]model.Slot, 2*len(model.OfferedSlots))
	labels := make([]string, 0, len(model.OfferedSlots))
	for _, s := range model.OfferedSlots {
		label := s.Label(d.cfg.UserOffset, d.tr.Raw("slot_label"))
		d.slots[label] = s
		d.slots[s.String()] = s
		labels = append(labels, label)
	}

	d.mainMenu = adapter.Menu{
		{d.tr.T("btn_on"), d.tr.T("btn_off")},
		{d.tr.T("btn_time"), d.tr.T("btn_status")},
		{d.tr.T("btn_cat"), d.tr.T("btn_help")},
	}
	d.timeMenu = adapter.Menu{}
	for i := 0; i < len(labels); i += 2 {
		row := labels[i:min(i+2, len(labels))]
		d.timeMenu = append(d.timeMenu, append([]string(nil), row...))
	}
	d.timeMenu = append(d.timeMenu, []string{d.tr.T("btn_back")})
}

func (d *Dispatcher) resolve(text string) (command, model.Slot) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		// "/start@SomeBot arg" -> "/start"
		text = strings.Fields(text + " ")[0]
		if i := strings.IndexByte(text, '@'); i > 0 {
			text = text[:i]
		}
		text = strings.ToLower(text)
	}
	if c, ok := d.commands[text]; ok {
		return c, model.Slot{}
	}
	if s, ok := d.slots[text]; ok {
		return cmdSlot, s
	}
	return cmdUnknown, model.Slot{}
}

// Dispatch handles one message. Calls for the same user must not run concurrently;
// the update source guarantees that.
func (d *Dispatcher) Dispatch(ctx context.Context, in adapter.Inbound) error {
	ctx = logging.WithUserID(logging.WithChatID(ctx, in.ChatID), in.UserID)
	if logging.TraceID(ctx) == "" {
		ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	}
	log := logging.With(ctx, d.log)
	defer logging.TraceDuration(log, "Dispatcher.Dispatch")()

	if d.limiter != nil {
		ok, err := d.limiter.Allow(ctx, in.UserID)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable; allowing")
		} else if !ok {
			metrics.IncRateLimitTriggered()
			d.reply(ctx, in.ChatID, d.tr.T("msg_rate_limited"), nil)
			return nil
		}
	}

	cmd, slot := d.resolve(in.Text)
	metrics.IncTelegramCommand(cmd.String())
	log.Debug().Str("command", cmd.String()).Msg("message received")

	settings, err := d.ensureSettings(ctx, in)
	if err != nil {
		log.Error().Err(err).Msg("settings unavailable")
		d.reply(ctx, in.ChatID, d.tr.T("msg_store_error"), d.mainMenu)
		return err
	}

	switch cmd {
	case cmdHelp:
		d.reply(ctx, in.ChatID, d.tr.T("msg_help"), d.mainMenu)
	case cmdOn:
		return d.setActive(ctx, log, settings, true)
	case cmdOff:
		return d.setActive(ctx, log, settings, false)
	case cmdTime:
		d.reply(ctx, in.ChatID, d.tr.T("msg_choose_time"), d.timeMenu)
	case cmdSlot:
		return d.setSlot(ctx, log, settings, slot)
	case cmdBack:
		d.reply(ctx, in.ChatID, d.tr.T("msg_back"), d.mainMenu)
	case cmdStatus:
		d.reply(ctx, in.ChatID, d.status(settings), d.mainMenu)
	case cmdCat:
		d.sendCat(ctx, log, in.ChatID)
	default:
		d.reply(ctx, in.ChatID, d.tr.T("msg_unknown"), d.mainMenu)
	}
	return nil
}

// ensureSettings returns the stored settings, creating the default row on first contact.
func (d *Dispatcher) ensureSettings(ctx context.Context, in adapter.Inbound) (*model.ReminderSettings, error) {
	s, err := d.store.Get(ctx, in.UserID)
	if err == nil {
		if s.ChatID != in.ChatID {
			s.ChatID = in.ChatID
			if err := d.store.Save(ctx, s); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	s, err = model.NewReminderSettings(in.UserID, in.ChatID, d.cfg.DefaultActive, model.DefaultSlot, d.cfg.Now())
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, s); err != nil {
		return nil, err
	}
	metrics.IncUsersRegistered()
	if s.Active {
		if err := d.sched.Start(s); err != nil {
			logging.With(ctx, d.log).Error().Err(err).Msg("could not arm default reminder")
		}
	}
	return s, nil
}

func (d *Dispatcher) setActive(ctx context.Context, log *zerolog.Logger, s *model.ReminderSettings, active bool) error {
	s.Active = active
	if err := d.store.Save(ctx, s); err != nil {
		log.Error().Err(err).Bool("active", active).Msg("save failed")
		d.reply(ctx, s.ChatID, d.tr.T("msg_store_error"), d.mainMenu)
		return err
	}
	if !active {
		d.sched.Stop(s.UserID)
		d.reply(ctx, s.ChatID, d.tr.T("msg_disabled"), d.mainMenu)
		return nil
	}
	if err := d.sched.Start(s); err != nil {
		log.Error().Err(err).Str("slot", s.FireTime.String()).Msg("could not arm reminder")
		d.reply(ctx, s.ChatID, d.tr.T("msg_schedule_error"), d.timeMenu)
		return err
	}
	d.reply(ctx, s.ChatID, d.tr.T("msg_enabled", d.userTime(s.FireTime)), d.mainMenu)
	return nil
}

func (d *Dispatcher) setSlot(ctx context.Context, log *zerolog.Logger, s *model.ReminderSettings, slot model.Slot) error {
	s.FireTime = slot
	if err := d.store.Save(ctx, s); err != nil {
		log.Error().Err(err).Str("slot", slot.String()).Msg("save failed")
		d.reply(ctx, s.ChatID, d.tr.T("msg_store_error"), d.mainMenu)
		return err
	}
	if s.Active {
		if err := d.sched.Start(s); err != nil {
			log.Error().Err(err).Msg("could not re-arm reminder")
			d.reply(ctx, s.ChatID, d.tr.T("msg_schedule_error"), d.timeMenu)
			return err
		}
	}
	d.reply(ctx, s.ChatID, d.tr.T("msg_time_set", d.userTime(slot)), d.mainMenu)
	return nil
}

func (d *Dispatcher) status(s *model.ReminderSettings) string {
	state := d.tr.T("status_off")
	next := d.tr.T("next_none")
	if s.Active {
		state = d.tr.T("status_on")
		at, ok := d.sched.NextFire(s.UserID)
		if !ok {
			at = s.NextFire(d.cfg.Now(), d.cfg.Location)
		}
		next = d.describeNext(at)
	}
	return d.tr.T("msg_status", state, d.userTime(s.FireTime), next)
}

// describeNext renders at as "today/tomorrow at HH:MM" in the user's frame.
func (d *Dispatcher) describeNext(at time.Time) string {
	userZone := time.FixedZone("user", offsetSeconds(d.cfg.Location, d.cfg.Now())+int(d.cfg.UserOffset/time.Second))
	now := d.cfg.Now().In(userZone)
	at = at.In(userZone)
	hm := at.Format("15:04")
	if y, m, day := now.Date(); at.Year() == y && at.Month() == m && at.Day() == day {
		return d.tr.T("next_today", hm)
	}
	return d.tr.T("next_tomorrow", hm)
}

func offsetSeconds(loc *time.Location, t time.Time) int {
	_, off := t.In(loc).Zone()
	return off
}

func (d *Dispatcher) userTime(s model.Slot) string {
	return s.UserTime(d.cfg.UserOffset).String()
}

func (d *Dispatcher) sendCat(ctx context.Context, log *zerolog.Logger, chatID int64) {
	o := usecase.OneOff{
		Searching:      d.tr.T("msg_searching"),
		Caption:        d.tr.T("msg_cat_caption"),
		FallbackFormat: d.tr.Raw("reminder_fallback"),
		Apology:        d.tr.T("msg_cat_apology"),
	}
	traceID := logging.TraceID(ctx)
	err := d.pool.Submit(func(ctx context.Context) error {
		ctx = logging.WithTraceID(logging.WithChatID(ctx, chatID), traceID)
		d.oneOff.DeliverOneOff(ctx, chatID, o)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("one-off delivery rejected")
		d.reply(ctx, chatID, d.tr.T("msg_busy"), d.mainMenu)
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, menu adapter.Menu) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	var err error
	if menu == nil {
		err = d.channel.SendText(ctx, chatID, text)
	} else {
		err = d.channel.SendMenu(ctx, chatID, text, menu)
	}
	if err != nil {
		metrics.IncSendError("sendMessage")
		logging.With(ctx, d.log).Warn().Err(err).Msg("reply not sent")
	}
}

// ReminderNotice builds the scheduled reminder content from the translator.
func ReminderNotice(tr Translator) usecase.Notice {
	return usecase.Notice{
		Text:           tr.T("reminder_text"),
		Caption:        tr.T("reminder_caption"),
		FallbackFormat: tr.Raw("reminder_fallback"),
	}
}
