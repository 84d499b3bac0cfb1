package model

import "fmt"

// Team identifies one side of a fixture. Identity is the numeric ID; names
// are display only and may collide across divisions. Byes and TBA
// opponents carry ID 0.
type Team struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
}

// Match is a single fixture record as published by the provider. MatchDate
// carries no year ("Mon, Jun 05") and MatchTime is either a clock time
// ("09:05 PM") or the "NA" sentinel.
type Match struct {
	MatchID         int     `json:"MatchId" validate:"required"`
	HomeTeam        Team    `json:"HomeTeam"`
	AwayTeam        Team    `json:"AwayTeam"`
	HomeTeamScore   *string `json:"HomeTeamScore"`
	AwayTeamScore   *string `json:"AwayTeamScore"`
	CompetitionName string  `json:"CompetitionName"`
	CourtName       string  `json:"CourtName"`
	DivisionID      int     `json:"DivisionId"`
	MatchDate       string  `json:"MatchDate"`
	MatchTime       string  `json:"MatchTime"`
	ResultSubmitted bool    `json:"ResultSubmitted"`
	Round           string  `json:"Round"`
	SeasonID        int     `json:"SeasonId"`
	SportID         int     `json:"SportId"`
}

// Competition describes a season/division a team is entered in.
type Competition struct {
	DivisionID   int    `json:"DivisionId"`
	DivisionName string `json:"DivisionName"`
	SeasonID     int    `json:"SeasonId"`
	SeasonName   string `json:"SeasonName"`
	SportID      int    `json:"SportId"`
	SportName    string `json:"SportName"`
}

// KeyValue mirrors the provider's metadata pairs (sport, gender, age group).
type KeyValue struct {
	Key   int    `json:"Key"`
	Value string `json:"Value"`
}

// TeamDetails is the subset of the provider's team payload that the
// calendar needs.
type TeamDetails struct {
	ID           int           `json:"Id" validate:"required"`
	Name         string        `json:"Name" validate:"required"`
	YearFormed   string        `json:"YearFormed"`
	Competitions []Competition `json:"AssociatedCompetitionCollection"`
	Sports       []KeyValue    `json:"SportCollectionMetaData"`
	Upcoming     []Match       `json:"UpcomingMatchCollection" validate:"dive"`
	Completed    []Match       `json:"CompletedMatchCollection" validate:"dive"`
}

// Identity returns the owning team as a Team value.
func (d TeamDetails) Identity() Team {
	return Team{ID: d.ID, Name: d.Name}
}

// PrimaryCompetition returns the first associated competition or an
// "Unknown" placeholder when the provider lists none.
func (d TeamDetails) PrimaryCompetition() Competition {
	if len(d.Competitions) > 0 {
		return d.Competitions[0]
	}
	return Competition{
		DivisionName: "Unknown",
		SeasonName:   "Unknown",
		SportName:    "Unknown",
	}
}

// SportName prefers the sport metadata collection and falls back to the
// competition's sport.
func (d TeamDetails) SportName() string {
	if len(d.Sports) > 0 && d.Sports[0].Value != "" {
		return d.Sports[0].Value
	}
	return d.PrimaryCompetition().SportName
}

// CalendarName is the feed title, e.g. "Spikers | 2023 Winter - Div 1B".
func (d TeamDetails) CalendarName() string {
	comp := d.PrimaryCompetition()
	return fmt.Sprintf("%s | %s - %s", d.Name, comp.SeasonName, comp.DivisionName)
}
