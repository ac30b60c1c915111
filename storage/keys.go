package storage

import "fmt"

func activeUsersKey() string {
	return "users:active"
}

func activeRoomsKey() string {
	return "rooms:active"
}

func roomStatusKey() string {
	return "rooms:status"
}

func gameTimeKey() string {
	return "gameTime"
}

func userBranchesKey(tenant string) string {
	return fmt.Sprintf("user:%s:branches", tenant)
}

func userCodeKey(tenant, branch string) string {
	return fmt.Sprintf("user:%s:code:%s", tenant, branch)
}

func userMemoryKey(tenant string) string {
	return fmt.Sprintf("user:%s:memory", tenant)
}

func userSegmentsKey(tenant string) string {
	return fmt.Sprintf("user:%s:memory-segments", tenant)
}

func userInterShardKey(tenant string) string {
	return fmt.Sprintf("user:%s:inter-shard", tenant)
}

func userCPUBucketKey(tenant string) string {
	return fmt.Sprintf("user:%s:cpu-bucket", tenant)
}

func userCPULimitKey(tenant string) string {
	return fmt.Sprintf("user:%s:cpu-limit", tenant)
}

func roomObjectsKey(room string) string {
	return fmt.Sprintf("room:%s:objects", room)
}

func roomIntentsKey(room string) string {
	return fmt.Sprintf("room:%s:intents", room)
}

func roomMapViewKey(room string) string {
	return fmt.Sprintf("room:%s:mapview", room)
}

func roomEventLogKey(room string) string {
	return fmt.Sprintf("room:%s:eventlog", room)
}

func roomHistoryKey(room string, tick uint64) string {
	return fmt.Sprintf("room:%s:history:%d", room, tick)
}

func historyUploadsKey() string {
	return "history:uploads"
}

func globalIntentsKey() string {
	return "intents:global"
}

func marketOrdersKey() string {
	return "market:orders"
}

func powerCreepsKey(tenant string) string {
	return fmt.Sprintf("user:%s:power-creeps", tenant)
}
