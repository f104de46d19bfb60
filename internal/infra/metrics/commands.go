package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(firstContacts, commandsTotal, rateLimited, sendErrors) }

var (
	firstContacts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_first_contacts_total",
		Help: "Users for whom a default reminder config was created.",
	})

	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_commands_total",
		Help: "Inbound messages by resolved command.",
	}, []string{"command"})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_rate_limited_total",
		Help: "Commands refused by the per-user limiter.",
	})

	sendErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Failed outbound chat calls by method.",
	}, []string{"method"}) // Bot API method: sendMessage, sendPhoto
)

func IncUsersRegistered()               { firstContacts.Inc() }
func IncTelegramCommand(command string) { commandsTotal.WithLabelValues(norm(command)).Inc() }
func IncRateLimitTriggered()            { rateLimited.Inc() }
func IncSendError(method string)        { sendErrors.WithLabelValues(norm(method)).Inc() }
