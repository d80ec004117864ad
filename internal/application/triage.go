package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// ManualIssue is the input for creating an issue by hand.
type ManualIssue struct {
	Title       string
	Body        string
	URL         string
	Observation string
	Open        bool
	TagIDs      []int64
}

// ProjectItem is an issue linked from a project board with its status on
// the board.
type ProjectItem struct {
	Issue  model.Issue
	Status string
}

// TriageService implements the user-facing issue, tag and repository
// operations that do not talk to the upstream tracker.
type TriageService struct {
	stores Stores
}

// NewTriageService creates a TriageService over the given stores.
func NewTriageService(stores Stores) *TriageService {
	return &TriageService{stores: stores}
}

// ListIssues returns one page of the user's issues matching filter.
func (s *TriageService) ListIssues(ctx context.Context, filter model.IssueFilter) (model.IssuePage, error) {
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedTo.Before(*filter.CreatedFrom) {
		return model.IssuePage{}, validationErrorf("created range end precedes its start")
	}
	filter.Normalize()
	return s.stores.Issues.List(ctx, filter)
}

// GetIssue returns one of the user's issues or driven.ErrIssueNotFound.
func (s *TriageService) GetIssue(ctx context.Context, userID, id int64) (model.Issue, error) {
	issue, err := s.stores.Issues.GetByID(ctx, userID, id)
	if err != nil {
		return model.Issue{}, err
	}
	if issue == nil {
		return model.Issue{}, fmt.Errorf("issue %d: %w", id, driven.ErrIssueNotFound)
	}
	return *issue, nil
}

// ToggleDiscarded flips the discarded flag of an issue and returns it.
func (s *TriageService) ToggleDiscarded(ctx context.Context, userID, id int64) (model.Issue, error) {
	issue, err := s.GetIssue(ctx, userID, id)
	if err != nil {
		return model.Issue{}, err
	}

	issue.Discarded = !issue.Discarded
	if err := s.stores.Issues.Update(ctx, issue); err != nil {
		return model.Issue{}, err
	}
	return issue, nil
}

// UpdateObservation replaces the free-text observation of an issue.
func (s *TriageService) UpdateObservation(ctx context.Context, userID, id int64, observation string) (model.Issue, error) {
	issue, err := s.GetIssue(ctx, userID, id)
	if err != nil {
		return model.Issue{}, err
	}

	issue.Observation = observation
	if err := s.stores.Issues.Update(ctx, issue); err != nil {
		return model.Issue{}, err
	}
	return issue, nil
}

// ReplaceTags sets the applied tags of an issue to exactly tagIDs. Every id
// must name an existing tag; otherwise nothing changes.
func (s *TriageService) ReplaceTags(ctx context.Context, userID, id int64, tagIDs []int64) (model.Issue, error) {
	if _, err := s.GetIssue(ctx, userID, id); err != nil {
		return model.Issue{}, err
	}

	if err := s.checkTags(ctx, tagIDs); err != nil {
		return model.Issue{}, err
	}

	if err := s.stores.Tags.ReplaceAppliedTags(ctx, id, dedupeIDs(tagIDs)); err != nil {
		return model.Issue{}, err
	}
	return s.GetIssue(ctx, userID, id)
}

// CreateManualIssue stores an issue that has no upstream source.
func (s *TriageService) CreateManualIssue(ctx context.Context, userID int64, in ManualIssue) (model.Issue, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Issue{}, validationErrorf("title is required")
	}
	if err := s.checkTags(ctx, in.TagIDs); err != nil {
		return model.Issue{}, err
	}

	issue, err := s.stores.Issues.Create(ctx, model.Issue{
		UserID:      userID,
		URL:         strings.TrimSpace(in.URL),
		Title:       title,
		Body:        in.Body,
		Open:        in.Open,
		Observation: in.Observation,
		Origin:      model.ManualOrigin(),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return model.Issue{}, err
	}

	for _, tagID := range dedupeIDs(in.TagIDs) {
		if err := s.stores.Tags.ApplyTag(ctx, issue.ID, tagID); err != nil {
			return model.Issue{}, err
		}
	}
	return s.GetIssue(ctx, userID, issue.ID)
}

// ListRepositories returns the user's tracked repositories.
func (s *TriageService) ListRepositories(ctx context.Context, userID int64) ([]model.Repository, error) {
	return s.stores.Repos.ListByUser(ctx, userID)
}

// RepositoryIssues returns every issue synced from one of the user's
// repositories, oldest first.
func (s *TriageService) RepositoryIssues(ctx context.Context, userID, repositoryID int64) (model.Repository, []model.Issue, error) {
	repo, err := s.stores.Repos.GetByID(ctx, userID, repositoryID)
	if err != nil {
		return model.Repository{}, nil, err
	}
	if repo == nil {
		return model.Repository{}, nil, fmt.Errorf("repository %d: %w", repositoryID, driven.ErrRepoNotFound)
	}

	issues, err := s.stores.Issues.ListByRepository(ctx, repo.ID)
	if err != nil {
		return model.Repository{}, nil, err
	}
	return *repo, issues, nil
}

// ListProjects returns the user's imported project boards.
func (s *TriageService) ListProjects(ctx context.Context, userID int64) ([]model.Project, error) {
	return s.stores.Projects.ListByUser(ctx, userID)
}

// ProjectIssues returns the issues linked from one of the user's project
// boards with their board status.
func (s *TriageService) ProjectIssues(ctx context.Context, userID, projectID int64) (model.Project, []ProjectItem, error) {
	project, err := s.stores.Projects.GetByID(ctx, userID, projectID)
	if err != nil {
		return model.Project{}, nil, err
	}
	if project == nil {
		return model.Project{}, nil, fmt.Errorf("project %d: %w", projectID, driven.ErrProjectNotFound)
	}
	return s.projectItems(ctx, userID, *project)
}

// ProjectIssuesByNumber is ProjectIssues addressed by the board's owner and
// number.
func (s *TriageService) ProjectIssuesByNumber(ctx context.Context, userID int64, owner string, number int) (model.Project, []ProjectItem, error) {
	owner = strings.TrimSpace(owner)
	project, err := s.stores.Projects.GetByNumber(ctx, userID, owner, number)
	if err != nil {
		return model.Project{}, nil, err
	}
	if project == nil {
		return model.Project{}, nil, fmt.Errorf("project %s #%d: %w", owner, number, driven.ErrProjectNotFound)
	}
	return s.projectItems(ctx, userID, *project)
}

func (s *TriageService) projectItems(ctx context.Context, userID int64, project model.Project) (model.Project, []ProjectItem, error) {
	links, err := s.stores.Projects.ListIssueLinks(ctx, project.ID)
	if err != nil {
		return model.Project{}, nil, err
	}

	items := make([]ProjectItem, 0, len(links))
	for _, link := range links {
		issue, err := s.stores.Issues.GetByID(ctx, userID, link.IssueID)
		if err != nil {
			return model.Project{}, nil, err
		}
		if issue == nil {
			continue
		}
		items = append(items, ProjectItem{Issue: *issue, Status: link.Status})
	}
	return project, items, nil
}

// CreateTag adds a tag. Names are unique ignoring case.
func (s *TriageService) CreateTag(ctx context.Context, tag model.Tag) (model.Tag, error) {
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return model.Tag{}, validationErrorf("tag name is required")
	}
	if err := s.checkTagName(ctx, tag); err != nil {
		return model.Tag{}, err
	}
	return s.stores.Tags.Create(ctx, tag)
}

// UpdateTag overwrites an existing tag. Renaming a tag to another tag's
// name is a conflict; changing only its case is allowed.
func (s *TriageService) UpdateTag(ctx context.Context, tag model.Tag) (model.Tag, error) {
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return model.Tag{}, validationErrorf("tag name is required")
	}
	if err := s.checkTagName(ctx, tag); err != nil {
		return model.Tag{}, err
	}
	if err := s.stores.Tags.Update(ctx, tag); err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

// ListTags returns every tag ordered by name.
func (s *TriageService) ListTags(ctx context.Context) ([]model.Tag, error) {
	return s.stores.Tags.ListAll(ctx)
}

// checkTagName reports driven.ErrTagExists when another tag already uses
// tag's name, naming the stored spelling.
func (s *TriageService) checkTagName(ctx context.Context, tag model.Tag) error {
	existing, err := s.stores.Tags.FindByName(ctx, tag.Name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != tag.ID {
		return fmt.Errorf("tag %q (stored as %q): %w", tag.Name, existing.Name, driven.ErrTagExists)
	}
	return nil
}

func (s *TriageService) checkTags(ctx context.Context, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		tag, err := s.stores.Tags.GetByID(ctx, tagID)
		if err != nil {
			return err
		}
		if tag == nil {
			return fmt.Errorf("tag %d: %w", tagID, driven.ErrTagNotFound)
		}
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
