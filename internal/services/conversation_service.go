package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"classline/internal/domain/chat"
	"classline/internal/domain/user"
	"classline/internal/repository"
	classline_errors "classline/pkg/errors"
)

// ConversationService resolves the single conversation pairing an
// instructor with a student, creating it on first contact. Same-pair
// find-or-create calls are serialized through a per-pair lock; the
// store's unique (instructor_id, student_id) constraint guards the
// invariant across processes, and a violation triggers one re-fetch.
type ConversationService struct {
	repo repository.ConversationRepository

	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
}

func NewConversationService(repo repository.ConversationRepository) *ConversationService {
	return &ConversationService{
		repo:      repo,
		pairLocks: make(map[string]*sync.Mutex),
	}
}

// Resolve finds or creates the conversation for the unordered
// (instructor, student) pair. Exactly one participant must be an
// instructor and the other a student; anything else is a caller error.
func (s *ConversationService) Resolve(ctx context.Context, a, b user.User) (chat.Conversation, error) {
	instructor, student, err := splitRoles(a, b)
	if err != nil {
		return chat.Conversation{}, err
	}

	lock := s.pairLock(instructor.ID, student.ID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.repo.GetByPair(ctx, instructor.ID, student.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, classline_errors.ErrNotFound) {
		return chat.Conversation{}, err
	}

	now := time.Now().UTC()
	created := chat.Conversation{
		ID: uuid.New(),
		Participants: chat.ParticipantPair{
			InstructorID:   instructor.ID,
			InstructorName: instructor.DisplayName,
			StudentID:      student.ID,
			StudentName:    student.DisplayName,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, &created); err != nil {
		if errors.Is(err, classline_errors.ErrAlreadyExists) {
			// A concurrent sender won the insert; return their row.
			return s.repo.GetByPair(ctx, instructor.ID, student.ID)
		}
		return chat.Conversation{}, err
	}
	return created, nil
}

func (s *ConversationService) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]chat.Conversation, error) {
	conversations, err := s.repo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conversations == nil {
		conversations = []chat.Conversation{}
	}
	return conversations, nil
}

func splitRoles(a, b user.User) (instructor, student user.User, err error) {
	switch {
	case a.Role == user.RoleInstructor && b.Role == user.RoleStudent:
		return a, b, nil
	case a.Role == user.RoleStudent && b.Role == user.RoleInstructor:
		return b, a, nil
	default:
		return user.User{}, user.User{}, fmt.Errorf(
			"conversation requires one instructor and one student, got %s and %s: %w",
			a.Role, b.Role, classline_errors.ErrInvalidInput)
	}
}

func (s *ConversationService) pairLock(instructorID, studentID uuid.UUID) *sync.Mutex {
	key := instructorID.String() + ":" + studentID.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}
