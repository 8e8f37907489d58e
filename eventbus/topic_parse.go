package eventbus

import (
	"strconv"
	"strings"
	"time"
)

// ParseRetryAttemptFromTopicName는 "<base>.retry.<n>" 형식에서 n 과 base 를 추출합니다.
func ParseRetryAttemptFromTopicName(name string) (base string, attempt int, ok bool) {
	idx := strings.LastIndex(name, ".retry.")
	if idx <= 0 || idx+7 >= len(name) {
		return "", 0, false
	}
	n, err := strconv.Atoi(name[idx+7:])
	if err != nil || n <= 0 || n > len(RetryDelays) {
		return "", 0, false
	}
	return name[:idx], n, true
}

// ParseRetryDelayFromTopicName는 토픽 이름에서 재시도 지연 시간을 추출합니다.
// 지원 형식: "<base>.retry.<n>"  (n은 1부터 시작) => RetryDelays[n-1]
func ParseRetryDelayFromTopicName(name string) (time.Duration, bool) {
	_, n, ok := ParseRetryAttemptFromTopicName(name)
	if !ok {
		return 0, false
	}
	return RetryDelays[n-1], true
}
