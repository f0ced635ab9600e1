package store

import (
	"time"

	"github.com/chatify/apiserver/types"
)

var seedEpoch = time.Date(2024, time.September, 2, 9, 0, 0, 0, time.UTC)

// DefaultSeed returns the demo dataset used on first run.
func DefaultSeed() Snapshot {
	users := []types.User{
		{
			ID:         "seed-faculty-1",
			Name:       "Dr. Amara Okafor",
			Email:      "a.okafor@university.edu",
			Department: "Computer Science",
			Year:       "Faculty",
			Role:       types.RoleFaculty,
			Bio:        "Distributed systems, coffee, office hours on Thursdays.",
			CreatedAt:  seedEpoch,
		},
		{
			ID:         "seed-student-1",
			Name:       "Liam Chen",
			Email:      "liam.chen@university.edu",
			Department: "Computer Science",
			Year:       "3",
			Role:       types.RoleStudent,
			CreatedAt:  seedEpoch,
		},
		{
			ID:         "seed-student-2",
			Name:       "Sofia Rossi",
			Email:      "sofia.rossi@university.edu",
			Department: "Mechanical Engineering",
			Year:       "1",
			Role:       types.RoleStudent,
			CreatedAt:  seedEpoch,
		},
	}

	author := func(i int) *types.User {
		u := users[i].Public()
		return &u
	}

	posts := []types.Post{
		{
			ID:        "seed-post-3",
			Content:   "Anyone up for a study group before the thermodynamics midterm? #studygroup #engineering",
			CreatedAt: seedEpoch.Add(50 * time.Hour),
			UpdatedAt: seedEpoch.Add(50 * time.Hour),
			AuthorID:  users[2].ID,
			Author:    author(2),
			Likes:     types.NewLikeSet(users[1].ID),
			Comments:  []types.Comment{},
			Tags:      []string{"#studygroup", "#engineering"},
			IsFlagged: types.FlagClear,
		},
		{
			ID:        "seed-post-2",
			Content:   "The hackathon team sign-up sheet is pinned in the CS lounge. #hackathon",
			CreatedAt: seedEpoch.Add(26 * time.Hour),
			UpdatedAt: seedEpoch.Add(27 * time.Hour),
			AuthorID:  users[1].ID,
			Author:    author(1),
			Likes:     types.NewLikeSet(users[0].ID, users[2].ID),
			Comments: []types.Comment{
				{
					ID:        "seed-comment-1",
					Content:   "Count me in!",
					CreatedAt: seedEpoch.Add(27 * time.Hour),
					AuthorID:  users[2].ID,
					Author:    author(2),
					PostID:    "seed-post-2",
					Likes:     types.LikeSet{},
				},
			},
			Tags:      []string{"#hackathon"},
			IsFlagged: types.FlagClear,
		},
		{
			ID:        "seed-post-1",
			Content:   "Welcome back! Office hours for CS 341 move to room 204 this semester. #announcements",
			CreatedAt: seedEpoch,
			UpdatedAt: seedEpoch,
			AuthorID:  users[0].ID,
			Author:    author(0),
			Likes:     types.NewLikeSet(users[1].ID, users[2].ID),
			Comments:  []types.Comment{},
			Tags:      []string{"#announcements"},
			IsFlagged: types.FlagClear,
		},
	}

	return Snapshot{Users: users, Posts: posts}
}
