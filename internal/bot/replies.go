package bot

import (
	"fmt"
	"strings"

	"xcbot/internal/model"
)

const helpText = `Available commands:

- follow <pilot>: get notified when <pilot> uploads a new flight. Use the pilot's XContest username.
- stop <pilot>: stop getting notified about <pilot>'s flights.
- list: show the pilots you are following.
- version: show the bot version.
- help: show this text.`

const followUsage = `To follow a pilot, send "follow <username>" (example: "follow chrigel"). Use the pilot's XContest username.`

const stopUsage = `To unfollow a pilot, send "stop <username>" (example: "stop chrigel"). Use the pilot's XContest username.`

func unknownReply(command, nickname, sender string) string {
	name := strings.TrimSpace(nickname)
	if name == "" {
		name = sender
	}
	return fmt.Sprintf("Hi %s!\n\nUnknown command %q. Send \"help\" for the list of commands.", name, command)
}

func formatSubscriptions(pilots []string) string {
	if len(pilots) == 0 {
		return "You are not following any pilots yet.\n\n" + followUsage
	}
	var b strings.Builder
	b.WriteString("You are following:\n")
	for _, p := range pilots {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}

func formatStats(st *model.Stats) string {
	return fmt.Sprintf("Database stats:\n\n- Users: %d\n- Subscriptions: %d\n- Flights: %d",
		st.Users, st.Subscriptions, st.Flights)
}
