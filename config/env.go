package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv 는 배포 환경에서 쓰던 환경변수 이름을 그대로 받아 YAML 값을 덮어쓴다.
func applyEnv(c *AppConfig) {
	setString(&c.Logging.Level, "LOG_LEVEL")

	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.SSLMode, "DB_SSLMODE")

	setString(&c.Broker.Backend, "BROKER_BACKEND")
	setString(&c.Broker.URL, "RABBITMQ_URL")
	setString(&c.Broker.Kafka.Brokers, "KAFKA_BOOTSTRAP_SERVERS")
	setString(&c.Broker.Kafka.GroupID, "KAFKA_GROUP_ID")
	setInt(&c.Broker.Kafka.MessageMaxBytes, "KAFKA_MESSAGE_MAX_BYTES")
	setInt(&c.Broker.Kafka.MaxPollIntervalMs, "KAFKA_MAX_POLL_INTERVAL_MS")

	setString(&c.Queues.DCInside, "DCINSIDE_QUEUE")
	setString(&c.Queues.Reddit, "REDDIT_QUEUE")

	setList(&c.Summary.Models, "GEMINI_MODEL_PRIORITIES")
	setList(&c.Summary.Models, "SUMMARY_MODEL_PRIORITIES")
	setInt(&c.Summary.CooldownSeconds, "SUMMARY_COOLDOWN_SECONDS")
	setInt(&c.Summary.TimeoutSeconds, "SUMMARY_TIMEOUT_SECONDS")
	setInt(&c.Summary.MaxTextLength, "SUMMARY_MAX_TEXT")
	setString(&c.Summary.CooldownStore, "SUMMARY_COOLDOWN_STORE")
	setString(&c.Summary.CodexBinary, "CODEX_BINARY")

	setString(&c.Worker.Family, "WORKER_FAMILY")
	setInt(&c.Worker.Port, "PORT")
	setInt(&c.Worker.LeaseTimeoutSeconds, "LEASE_TIMEOUT_SECONDS")
	setInt(&c.Worker.FetchTimeoutSeconds, "FETCH_TIMEOUT_SECONDS")
	setInt(&c.Worker.StoreTimeoutSeconds, "STORE_TIMEOUT_SECONDS")
	setInt(&c.Worker.InvocationTimeoutSeconds, "INVOCATION_TIMEOUT_SECONDS")
	setString(&c.Worker.AssetRoot, "ASSET_ROOT")
	setString(&c.Worker.UserAgent, "REDDIT_USER_AGENT")
	setString(&c.Worker.ChromePath, "CHROME_PATH")

	setInt(&c.Crawl.DCInside.MaxPosts, "DCINSIDE_MAX_POSTS")
	setInt(&c.Crawl.DCInside.MinPostAgeHours, "DCINSIDE_MIN_POST_AGE_HOURS")
	setInt(&c.Crawl.DCInside.MaxPostAgeHours, "DCINSIDE_MAX_POST_AGE_HOURS")
	setInt(&c.Crawl.Reddit.MaxPosts, "REDDIT_MAX_POSTS")
	setInt(&c.Crawl.Reddit.MinPostAgeHours, "REDDIT_MIN_POST_AGE_HOURS")
	setInt(&c.Crawl.Reddit.MaxPostAgeHours, "REDDIT_MAX_POST_AGE_HOURS")
	setList(&c.Crawl.Reddit.Subreddits, "REDDIT_SUBREDDITS")
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// 숫자로 해석되지 않는 값은 무시하고 기존 값을 유지한다.
func setInt(dst *int, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func setList(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	if list := SplitList(v); len(list) > 0 {
		*dst = list
	}
}

// SplitList 는 콤마 구분 문자열을 공백 제거된 항목 목록으로 나눈다. 빈 항목은 버린다.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
