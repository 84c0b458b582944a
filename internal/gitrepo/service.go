// Package gitrepo keeps a git repository per blog post and commits a JSON
// snapshot of the post on every save.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"blogwriter/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	snapshotFile = "post.json"
	mainBranch   = "main"
)

var ErrRevisionNotFound = errors.New("revision not found")

type Snapshot struct {
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Excerpt  string          `json:"excerpt"`
	Content  string          `json:"content"`
	Status   string          `json:"status"`
	Keywords []string        `json:"keywords"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func SnapshotOf(post store.BlogPost) Snapshot {
	return Snapshot{
		Title:    post.Title,
		Slug:     post.Slug,
		Excerpt:  post.Excerpt,
		Content:  post.Content,
		Status:   post.Status,
		Keywords: post.Keywords,
		Metadata: post.Metadata,
	}
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records snapshot as the newest revision of postID, creating the
// repository on first use. An unchanged snapshot returns the current head.
func (s *Service) Commit(postID string, snapshot Snapshot, author, message string) (store.CommitInfo, error) {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(postID)
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return s.initRepo(path, snapshot, author, message)
	}
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	if head, err := headCommit(repo); err == nil {
		if current, err := readSnapshot(head); err == nil && !HasChanges(current, snapshot) {
			return toCommitInfo(head), nil
		}
	}

	hash, err := s.commit(repo, snapshot, author, message)
	if err != nil {
		return store.CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) initRepo(path string, snapshot Snapshot, author, message string) (store.CommitInfo, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return store.CommitInfo{}, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := writeSnapshot(worktree.Filesystem.Root(), snapshot); err != nil {
		return store.CommitInfo{}, err
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add initial snapshot: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{Author: signature(author)})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit initial snapshot: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return store.CommitInfo{}, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return store.CommitInfo{}, fmt.Errorf("set HEAD to main: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists revisions newest first. A post without a repository has no
// history.
func (s *Service) History(postID string, limit int) ([]store.CommitInfo, error) {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(postID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Revision loads the snapshot stored at hash, which may be abbreviated.
func (s *Service) Revision(postID, hash string) (Snapshot, store.CommitInfo, error) {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(postID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Snapshot{}, store.CommitInfo{}, ErrRevisionNotFound
	}
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, ErrRevisionNotFound
	}
	snapshot, err := readSnapshot(commitObj)
	if err != nil {
		return Snapshot{}, store.CommitInfo{}, err
	}
	return snapshot, toCommitInfo(commitObj), nil
}

// Remove deletes the post's repository.
func (s *Service) Remove(postID string) error {
	lock := s.postLock(postID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(postID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(postID string) string {
	return filepath.Join(s.baseDir, filepath.Base(postID))
}

func (s *Service) postLock(postID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[postID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[postID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, snapshot Snapshot, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(mainBranch), Force: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("checkout branch %s: %w", mainBranch, err)
	}
	if err := writeSnapshot(worktree.Filesystem.Root(), snapshot); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@users.blogwriter.local", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func writeSnapshot(root string, snapshot Snapshot) error {
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	return nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, err
	}
	return repo.CommitObject(ref.Hash())
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Changes lists the fields that differ between two snapshots. Long text
// fields are reported without their values.
func Changes(from, to Snapshot) []FieldChange {
	result := make([]FieldChange, 0)
	add := func(field, before, after string) {
		if before != after {
			result = append(result, FieldChange{Field: field, Before: before, After: after})
		}
	}
	add("title", from.Title, to.Title)
	add("slug", from.Slug, to.Slug)
	add("status", from.Status, to.Status)
	add("excerpt", from.Excerpt, to.Excerpt)
	add("keywords", fmt.Sprint(from.Keywords), fmt.Sprint(to.Keywords))
	if from.Content != to.Content {
		result = append(result, FieldChange{Field: "content", Before: "[content]", After: "[content]"})
	}
	if !bytes.Equal(normalizeJSON(from.Metadata), normalizeJSON(to.Metadata)) {
		result = append(result, FieldChange{Field: "metadata", Before: "[metadata]", After: "[metadata]"})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Field < result[j].Field })
	return result
}

func HasChanges(from, to Snapshot) bool {
	return len(Changes(from, to)) > 0
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, ErrRevisionNotFound
	}
	return *resolved, nil
}
