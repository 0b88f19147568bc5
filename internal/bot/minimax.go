// Package bot selects moves for the computer opponent by exhaustive minimax
// over the 3x3 board.
package bot

import (
    "math"

    "github.com/jaminalder/tictactoe/internal/domain"
)

const winScore = 10

// Result is the outcome of a top-level search: the chosen cell and its
// minimax score from the bot's point of view. A positive score is a forced
// win, zero a draw under perfect play, negative a forced loss.
type Result struct {
    Cell  int
    Score int
}

// searcher owns the scratch board for one top-level call. Placements are
// applied and retracted in place so sibling branches see the same board.
type searcher struct {
    board domain.Board
    bot   domain.Cell
    human domain.Cell
}

// ChooseMove returns the optimal empty cell for botMark, or false when the
// board is full or the marks are not a distinct X/O pair.
func ChooseMove(board domain.Board, botMark, humanMark domain.Cell) (int, bool) {
    res, ok := Search(board, botMark, humanMark)
    if !ok {
        return -1, false
    }
    return res.Cell, true
}

// Search is ChooseMove that also reports the score of the chosen cell.
// Ties keep the lowest-indexed cell.
func Search(board domain.Board, botMark, humanMark domain.Cell) (Result, bool) {
    if !validMarks(botMark, humanMark) {
        return Result{Cell: -1}, false
    }
    s := &searcher{board: board, bot: botMark, human: humanMark}
    best := Result{Cell: -1, Score: math.MinInt}
    for i := range s.board {
        if s.board[i] != domain.Empty {
            continue
        }
        s.board[i] = s.bot
        score := s.minimax(0, false)
        s.board[i] = domain.Empty
        if score > best.Score {
            best = Result{Cell: i, Score: score}
        }
    }
    if best.Cell < 0 {
        return Result{Cell: -1}, false
    }
    return best, true
}

// minimax scores the scratch board. depth counts plies below the top-level
// placement; quicker wins score higher and quicker losses lower.
func (s *searcher) minimax(depth int, maximizing bool) int {
    switch domain.Winner(s.board) {
    case s.bot:
        return winScore - depth
    case s.human:
        return depth - winScore
    }
    if domain.IsFull(s.board) {
        return 0
    }

    mark := s.human
    best := math.MaxInt
    if maximizing {
        mark = s.bot
        best = math.MinInt
    }
    for i := range s.board {
        if s.board[i] != domain.Empty {
            continue
        }
        s.board[i] = mark
        score := s.minimax(depth+1, !maximizing)
        s.board[i] = domain.Empty
        if maximizing {
            best = max(best, score)
        } else {
            best = min(best, score)
        }
    }
    return best
}

func validMarks(botMark, humanMark domain.Cell) bool {
    if botMark != domain.X && botMark != domain.O {
        return false
    }
    return humanMark == botMark.Opponent()
}
