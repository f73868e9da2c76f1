package internal

const (
	// IRC commands used by the bot front end
	CMD_PRIVMSG = "PRIVMSG"
	CMD_JOIN    = "JOIN"
	CMD_NOTICE  = "NOTICE"

	RPL_WELCOME   = "001"
	RPL_ENDOFMOTD = "376"
	ERR_NOMOTD    = "422"
)

const (
	APP_VERSION = "1.0.0"

	DEFAULT_CONFIG_PATH = "./data/config.toml"
	DEFAULT_LOG_DIR     = "./data"
	DEFAULT_HTTP_ADDR   = ":8080"
	DEFAULT_USERS_URL   = "http://localhost:3000/api"

	DEFAULT_MODEL          = "gpt-3.5-turbo-1106"
	DEFAULT_ASSISTANT_NAME = "Gori"
	DEFAULT_ROLE_NAME      = "New Game"

	DEFAULT_POLL_INTERVAL_MS = 1000
	DEFAULT_MAX_POLLS        = 120
	DEFAULT_API_TIMEOUT      = 30

	DEFAULT_RECONNECT_DELAY = 5
	DEFAULT_CONNECT_TIMEOUT = 30
)
