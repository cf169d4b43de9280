package state

// Key layout shared by the orchestration components. Keeping the builders in
// one place is what guarantees the guard a lifecycle dispatch sets is the same
// record a status stop releases.

func GuardKey(channel string) string {
	return "guard:" + channel
}

func SessionKey(channel string) string {
	return "session:" + channel
}

func PollKey(channel, agentID string) string {
	return "poll:" + channel + ":" + agentID
}

func PollPrefix(channel string) string {
	return "poll:" + channel + ":"
}

func ContextKey(channel string) string {
	return "convctx:" + channel
}

func DirectoryKey(userID, businessID string) string {
	return "phonebook:" + userID + ":" + businessID
}

func DirectoryPrefix(userID string) string {
	return "phonebook:" + userID + ":"
}

func ActionKey(channel string) string {
	return "callaction:" + channel
}
