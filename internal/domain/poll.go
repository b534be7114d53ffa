package domain

import "time"

type (
	PollID   string
	OptionID string
)

type PollOption struct {
	ID    OptionID `json:"id"`
	Text  string   `json:"text"`
	Votes []Vote   `json:"votes"`
}

// Poll is immutable after creation except for the vote lists of its options.
type Poll struct {
	ID                 PollID       `json:"id"`
	Title              string       `json:"title"`
	Options            []PollOption `json:"options"`
	AllowMultipleVotes bool         `json:"allowMultipleVotes"`
	AllowChangeVotes   bool         `json:"allowChangeVotes"`
	CreatedBy          UserID       `json:"createdBy"`
	CreatedAt          int64        `json:"createdAt"` // unix millis
}

// PollParams is what the host submits. The option count is checked by the
// client form, not here.
type PollParams struct {
	Title              string   `json:"title"`
	Options            []string `json:"options"`
	AllowMultipleVotes bool     `json:"allowMultipleVotes"`
	AllowChangeVotes   bool     `json:"allowChangeVotes"`
}

func NewPoll(p PollParams, createdBy UserID, now time.Time) *Poll {
	opts := make([]PollOption, 0, len(p.Options))
	for _, text := range p.Options {
		opts = append(opts, PollOption{ID: OptionID(NewID()), Text: text, Votes: []Vote{}})
	}
	return &Poll{
		ID:                 PollID(NewID()),
		Title:              p.Title,
		Options:            opts,
		AllowMultipleVotes: p.AllowMultipleVotes,
		AllowChangeVotes:   p.AllowChangeVotes,
		CreatedBy:          createdBy,
		CreatedAt:          now.UnixMilli(),
	}
}

func (p *Poll) optionIndex(id OptionID) int {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return i
		}
	}
	return -1
}

// Option returns the option with the given id.
func (p *Poll) Option(id OptionID) (*PollOption, bool) {
	i := p.optionIndex(id)
	if i < 0 {
		return nil, false
	}
	return &p.Options[i], true
}

// VotedOptions lists the options that currently hold a vote by uid, in option order.
func (p *Poll) VotedOptions(uid UserID) []OptionID {
	var out []OptionID
	for _, opt := range p.Options {
		if opt.hasVoteBy(uid) {
			out = append(out, opt.ID)
		}
	}
	return out
}

func (o *PollOption) hasVoteBy(uid UserID) bool {
	for _, v := range o.Votes {
		if v.UserID == uid {
			return true
		}
	}
	return false
}

// CastVote applies the voting policy for voter on optionID.
//
// The checks run in a fixed precedence: allowChangeVotes replaces any earlier
// vote of the user, so such polls hold at most one live vote per user no
// matter what allowMultipleVotes says. Without change-votes, a single-vote
// poll rejects any second vote and a multi-vote poll rejects only a repeat
// on the same option. A rejected call leaves every vote list untouched.
func (p *Poll) CastVote(voter User, optionID OptionID, now time.Time) (Vote, error) {
	idx := p.optionIndex(optionID)
	if idx < 0 {
		return Vote{}, ErrOptionNotFound
	}

	switch {
	case p.AllowChangeVotes:
		for i := range p.Options {
			p.Options[i].removeVotesBy(voter.ID)
		}
	case !p.AllowMultipleVotes:
		if len(p.VotedOptions(voter.ID)) > 0 {
			return Vote{}, ErrCannotChangeVote
		}
	default:
		if p.Options[idx].hasVoteBy(voter.ID) {
			return Vote{}, ErrDuplicateVote
		}
	}

	v := Vote{
		UserID:    voter.ID,
		UserName:  voter.Name,
		OptionID:  optionID,
		Timestamp: now.UnixMilli(),
	}
	p.Options[idx].Votes = append(p.Options[idx].Votes, v)
	return v, nil
}

func (o *PollOption) removeVotesBy(uid UserID) {
	kept := make([]Vote, 0, len(o.Votes))
	for _, v := range o.Votes {
		if v.UserID != uid {
			kept = append(kept, v)
		}
	}
	o.Votes = kept
}

// Clone returns a deep copy; vote lists are never shared.
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	c := *p
	c.Options = make([]PollOption, len(p.Options))
	for i, opt := range p.Options {
		opt.Votes = append([]Vote{}, opt.Votes...)
		c.Options[i] = opt
	}
	return &c
}
