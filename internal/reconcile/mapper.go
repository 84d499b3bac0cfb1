package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"fixcal/internal/model"
)

// Trailer is appended to every event description.
const Trailer = "Generated by fixcal from published fixtures. Times and venues can change; check with your competition organiser."

// uidNamespace scopes the deterministic event UIDs so a re-published feed
// updates events in place instead of duplicating them.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://fixcal/events"))

// Mapper turns fixture records into calendar events. It is stateless.
type Mapper struct{}

// Map builds the event for match as seen by team. Opponent selection
// compares team IDs, never names.
func (Mapper) Map(team model.Team, match model.Match, timing model.Timing, location string) model.ResolvedEvent {
	opponent := match.HomeTeam
	if match.HomeTeam.ID == team.ID {
		opponent = match.AwayTeam
	}

	return model.ResolvedEvent{
		UID:         MatchUID(match.MatchID),
		Timing:      timing,
		Summary:     fmt.Sprintf("%s vs %s", team.Name, opponent.Name),
		Description: describeMatch(match),
		Location:    location,
		MatchID:     match.MatchID,
	}
}

// MatchUID is the stable UID for a provider match.
func MatchUID(matchID int) string {
	return uuid.NewSHA1(uidNamespace, []byte("match:"+strconv.Itoa(matchID))).String() + "@fixcal"
}

func describeMatch(m model.Match) string {
	var b strings.Builder
	if m.CourtName != "" {
		b.WriteString(m.CourtName)
		b.WriteString("\n")
	}
	if m.Round != "" {
		b.WriteString("Round ")
		b.WriteString(m.Round)
		b.WriteString("\n")
	}
	if m.HomeTeamScore != nil && m.AwayTeamScore != nil {
		fmt.Fprintf(&b, "Result: %s %s - %s %s\n", m.HomeTeam.Name, *m.HomeTeamScore, *m.AwayTeamScore, m.AwayTeam.Name)
	}
	b.WriteString("\n")
	b.WriteString(Trailer)
	return b.String()
}
